package mocks

import (
	"context"

	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/stretchr/testify/mock"
)

// VaultItemRepository - мок repository.VaultItemRepository.
type VaultItemRepository struct {
	mock.Mock
}

// VaultItemRepositoryExpecter задает ожидания в стиле EXPECT().
type VaultItemRepositoryExpecter struct {
	mock *mock.Mock
}

// EXPECT возвращает построитель ожиданий.
func (m *VaultItemRepository) EXPECT() *VaultItemRepositoryExpecter {
	return &VaultItemRepositoryExpecter{mock: &m.Mock}
}

func (m *VaultItemRepository) List(ctx context.Context, userID string, filter models.VaultItemFilter) ([]models.VaultItem, error) {
	ret := m.Called(ctx, userID, filter)
	items, _ := ret.Get(0).([]models.VaultItem)
	return items, ret.Error(1)
}

func (e *VaultItemRepositoryExpecter) List(ctx, userID, filter any) *mock.Call {
	return e.mock.On("List", ctx, userID, filter)
}

func (m *VaultItemRepository) SectionCounts(ctx context.Context, userID string) ([]models.SectionCount, error) {
	ret := m.Called(ctx, userID)
	counts, _ := ret.Get(0).([]models.SectionCount)
	return counts, ret.Error(1)
}

func (e *VaultItemRepositoryExpecter) SectionCounts(ctx, userID any) *mock.Call {
	return e.mock.On("SectionCounts", ctx, userID)
}

func (m *VaultItemRepository) Create(ctx context.Context, userID string, fields models.VaultItemFields) (*models.VaultItem, error) {
	ret := m.Called(ctx, userID, fields)
	item, _ := ret.Get(0).(*models.VaultItem)
	return item, ret.Error(1)
}

func (e *VaultItemRepositoryExpecter) Create(ctx, userID, fields any) *mock.Call {
	return e.mock.On("Create", ctx, userID, fields)
}

func (m *VaultItemRepository) Update(
	ctx context.Context, userID string, id int64, patch models.VaultItemPatch,
) (*models.VaultItem, error) {
	ret := m.Called(ctx, userID, id, patch)
	item, _ := ret.Get(0).(*models.VaultItem)
	return item, ret.Error(1)
}

func (e *VaultItemRepositoryExpecter) Update(ctx, userID, id, patch any) *mock.Call {
	return e.mock.On("Update", ctx, userID, id, patch)
}

func (m *VaultItemRepository) Delete(ctx context.Context, userID string, id int64) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (e *VaultItemRepositoryExpecter) Delete(ctx, userID, id any) *mock.Call {
	return e.mock.On("Delete", ctx, userID, id)
}

func (m *VaultItemRepository) Reorder(ctx context.Context, userID string, moves []models.ShelfMove) (int, error) {
	ret := m.Called(ctx, userID, moves)
	return ret.Int(0), ret.Error(1)
}

func (e *VaultItemRepositoryExpecter) Reorder(ctx, userID, moves any) *mock.Call {
	return e.mock.On("Reorder", ctx, userID, moves)
}
