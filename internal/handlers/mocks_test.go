package handlers_test

import (
	"context"

	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/pricing"
	"github.com/leoygitty/GSR-App/internal/services"
	"github.com/stretchr/testify/mock"
)

// --- Mock LatestService --- //

type MockLatestService struct {
	mock.Mock
}

func (m *MockLatestService) Latest(ctx context.Context, opts services.LatestOptions) (*models.LatestResult, error) {
	args := m.Called(ctx, opts)
	res, _ := args.Get(0).(*models.LatestResult)
	return res, args.Error(1)
}

func (m *MockLatestService) Refresh(ctx context.Context, method string) (*models.PriceSnapshot, error) {
	args := m.Called(ctx, method)
	snap, _ := args.Get(0).(*models.PriceSnapshot)
	return snap, args.Error(1)
}

// --- Mock BackfillService --- //

type MockBackfillService struct {
	mock.Mock
}

func (m *MockBackfillService) Run(ctx context.Context) (*models.BackfillSummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.BackfillSummary)
	return s, args.Error(1)
}

// --- Mock VaultItemService --- //

type MockVaultItemService struct {
	mock.Mock
}

func (m *MockVaultItemService) List(
	ctx context.Context, userID string, q services.VaultListQuery,
) ([]models.VaultItem, models.VaultListMeta, error) {
	args := m.Called(ctx, userID, q)
	items, _ := args.Get(0).([]models.VaultItem)
	meta, _ := args.Get(1).(models.VaultListMeta)
	return items, meta, args.Error(2)
}

func (m *MockVaultItemService) Create(
	ctx context.Context, userID string, req models.CreateVaultItemRequest,
) (*models.VaultItem, error) {
	args := m.Called(ctx, userID, req)
	item, _ := args.Get(0).(*models.VaultItem)
	return item, args.Error(1)
}

func (m *MockVaultItemService) Update(
	ctx context.Context, userID string, id int64, req models.UpdateVaultItemRequest,
) (*models.VaultItem, error) {
	args := m.Called(ctx, userID, id, req)
	item, _ := args.Get(0).(*models.VaultItem)
	return item, args.Error(1)
}

func (m *MockVaultItemService) Delete(ctx context.Context, userID string, id int64) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockVaultItemService) Reorder(ctx context.Context, userID string, req models.ReorderRequest) (int, error) {
	args := m.Called(ctx, userID, req)
	return args.Int(0), args.Error(1)
}

// --- Stub Source --- //

type stubSource struct {
	quote pricing.Quote
	err   error
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchSpot(context.Context) (pricing.Quote, error) {
	return s.quote, s.err
}
