// Package mocks содержит testify-моки интерфейсов репозиториев и сервисов.
package mocks

import (
	"context"
	"time"

	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/stretchr/testify/mock"
)

// PriceRepository - мок repository.PriceRepository.
type PriceRepository struct {
	mock.Mock
}

// PriceRepositoryExpecter задает ожидания в стиле EXPECT().
type PriceRepositoryExpecter struct {
	mock *mock.Mock
}

// EXPECT возвращает построитель ожиданий.
func (m *PriceRepository) EXPECT() *PriceRepositoryExpecter {
	return &PriceRepositoryExpecter{mock: &m.Mock}
}

func (m *PriceRepository) GetByDate(ctx context.Context, date time.Time) (*models.PriceSnapshot, error) {
	ret := m.Called(ctx, date)
	snap, _ := ret.Get(0).(*models.PriceSnapshot)
	return snap, ret.Error(1)
}

func (e *PriceRepositoryExpecter) GetByDate(ctx, date any) *mock.Call {
	return e.mock.On("GetByDate", ctx, date)
}

func (m *PriceRepository) GetLatest(ctx context.Context) (*models.PriceSnapshot, error) {
	ret := m.Called(ctx)
	snap, _ := ret.Get(0).(*models.PriceSnapshot)
	return snap, ret.Error(1)
}

func (e *PriceRepositoryExpecter) GetLatest(ctx any) *mock.Call {
	return e.mock.On("GetLatest", ctx)
}

func (m *PriceRepository) ListRecent(ctx context.Context, limit int) ([]models.PriceSnapshot, error) {
	ret := m.Called(ctx, limit)
	snaps, _ := ret.Get(0).([]models.PriceSnapshot)
	return snaps, ret.Error(1)
}

func (e *PriceRepositoryExpecter) ListRecent(ctx, limit any) *mock.Call {
	return e.mock.On("ListRecent", ctx, limit)
}

func (m *PriceRepository) Upsert(ctx context.Context, snap models.PriceSnapshot) error {
	return m.Called(ctx, snap).Error(0)
}

func (e *PriceRepositoryExpecter) Upsert(ctx, snap any) *mock.Call {
	return e.mock.On("Upsert", ctx, snap)
}

func (m *PriceRepository) UpsertBatch(ctx context.Context, snaps []models.PriceSnapshot) (int, error) {
	ret := m.Called(ctx, snaps)
	return ret.Int(0), ret.Error(1)
}

func (e *PriceRepositoryExpecter) UpsertBatch(ctx, snaps any) *mock.Call {
	return e.mock.On("UpsertBatch", ctx, snaps)
}
