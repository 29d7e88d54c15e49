package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/mocks"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/leoygitty/GSR-App/internal/services"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newVaultService(repo *mocks.VaultItemRepository) services.VaultItemService {
	logger, _ := test.NewNullLogger()
	return services.NewVaultItemService(repo, logger)
}

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestVaultItemService_CreateDefaults(t *testing.T) {
	repo := new(mocks.VaultItemRepository)
	req := decode[models.CreateVaultItemRequest](t,
		`{"label":" American Eagle ","metal":"Gold","item_type":"coin","weight_value":"1","weight_unit":"oz","purity":0.9167}`)

	var captured models.VaultItemFields
	slot := 0
	repo.EXPECT().Create(mock.Anything, "user_1", mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).(models.VaultItemFields) }).
		Return(&models.VaultItem{ID: 1, ShelfSection: "Coins", ShelfSlot: &slot}, nil).Once()

	item, err := newVaultService(repo).Create(context.Background(), "user_1", req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.ID)

	assert.Equal(t, "American Eagle", captured.Label)
	assert.Equal(t, "gold", captured.Metal)
	assert.Equal(t, "Coins", captured.ShelfSection)
	assert.Nil(t, captured.ShelfSlot, "слот назначает хранилище")
	require.NotNil(t, captured.Accent)
	assert.Equal(t, "gold", *captured.Accent)
	assert.Equal(t, "manual", captured.Source)
	assert.Equal(t, 1, captured.Qty)
	assert.InDelta(t, 1.0, captured.WeightValue, 1e-9)
	repo.AssertExpectations(t)
}

func TestVaultItemService_CreateNormalization(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, f models.VaultItemFields)
	}{
		{
			name: "Неизвестный тип становится other, секция Main",
			body: `{"label":"Ring","metal":"silver","item_type":"spoon","weight_value":12.5,"weight_unit":"g","purity":"0.925"}`,
			check: func(t *testing.T, f models.VaultItemFields) {
				assert.Equal(t, "other", f.ItemType)
				assert.Equal(t, "Main", f.ShelfSection)
				assert.Equal(t, "silver", *f.Accent)
			},
		},
		{
			name: "Платина получает акцент plat, слиток - секцию Bullion",
			body: `{"label":"Bar","metal":"platinum","item_type":"bar","weight_value":1,"weight_unit":"oz","purity":1}`,
			check: func(t *testing.T, f models.VaultItemFields) {
				assert.Equal(t, "plat", *f.Accent)
				assert.Equal(t, "Bullion", f.ShelfSection)
			},
		},
		{
			name: "Количество и слот ограничиваются",
			body: `{"label":"Bag","metal":"silver","item_type":"coin","weight_value":1,"weight_unit":"oz","purity":0.9,"qty":500000,"shelf_slot":-4}`,
			check: func(t *testing.T, f models.VaultItemFields) {
				assert.Equal(t, services.MaxQty, f.Qty)
				require.NotNil(t, f.ShelfSlot)
				assert.Equal(t, 0, *f.ShelfSlot)
			},
		},
		{
			name: "Длинный label обрезается",
			body: `{"label":"` + strings.Repeat("Ж", 300) + `","metal":"gold","weight_value":1,"weight_unit":"g","purity":1}`,
			check: func(t *testing.T, f models.VaultItemFields) {
				assert.Equal(t, 180, len([]rune(f.Label)))
			},
		},
		{
			name: "Явная секция и акцент сохраняются",
			body: `{"label":"X","metal":"gold","item_type":"coin","weight_value":1,"weight_unit":"oz","purity":1,"shelf_section":"Safe","accent":"rose"}`,
			check: func(t *testing.T, f models.VaultItemFields) {
				assert.Equal(t, "Safe", f.ShelfSection)
				assert.Equal(t, "rose", *f.Accent)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.VaultItemRepository)
			var captured models.VaultItemFields
			repo.EXPECT().Create(mock.Anything, "user_1", mock.Anything).
				Run(func(args mock.Arguments) { captured = args.Get(2).(models.VaultItemFields) }).
				Return(&models.VaultItem{ID: 2}, nil).Once()

			_, err := newVaultService(repo).Create(context.Background(), "user_1",
				decode[models.CreateVaultItemRequest](t, tt.body))
			require.NoError(t, err)
			tt.check(t, captured)
		})
	}
}

func TestVaultItemService_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "Пустой label", body: `{"label":"  ","metal":"gold","weight_value":1,"weight_unit":"g","purity":1}`, wantMsg: "Label required"},
		{name: "Неверный металл", body: `{"label":"a","metal":"copper","weight_value":1,"weight_unit":"g","purity":1}`, wantMsg: "Invalid metal"},
		{name: "Неверная единица", body: `{"label":"a","metal":"gold","weight_value":1,"weight_unit":"lb","purity":1}`, wantMsg: "Invalid weight_unit"},
		{name: "Нулевой вес", body: `{"label":"a","metal":"gold","weight_value":0,"weight_unit":"g","purity":1}`, wantMsg: "weight_value must be > 0"},
		{name: "Вес не передан", body: `{"label":"a","metal":"gold","weight_unit":"g","purity":1}`, wantMsg: "weight_value must be > 0"},
		{name: "Проба больше 1", body: `{"label":"a","metal":"gold","weight_value":1,"weight_unit":"g","purity":1.5}`, wantMsg: "purity must be between 0 and 1"},
		{name: "Нулевая проба", body: `{"label":"a","metal":"gold","weight_value":1,"weight_unit":"g","purity":0}`, wantMsg: "purity must be between 0 and 1"},
		{name: "Премия вне диапазона", body: `{"label":"a","metal":"gold","weight_value":1,"weight_unit":"g","purity":1,"premium_pct":501}`, wantMsg: "premium_pct out of range (0-500)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.VaultItemRepository)
			_, err := newVaultService(repo).Create(context.Background(), "user_1",
				decode[models.CreateVaultItemRequest](t, tt.body))
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.EqualError(t, err, tt.wantMsg)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestVaultItemService_CreateRejectsNonFinite(t *testing.T) {
	valid := func() models.CreateVaultItemRequest {
		return models.CreateVaultItemRequest{
			Label: "a", Metal: "gold", WeightUnit: "g",
			WeightValue: models.NullableFloat{Set: true, Value: 1},
			Purity:      models.NullableFloat{Set: true, Value: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(r *models.CreateVaultItemRequest)
		wantMsg string
	}{
		{
			name:    "Вес NaN",
			mutate:  func(r *models.CreateVaultItemRequest) { r.WeightValue.Value = math.NaN() },
			wantMsg: "weight_value must be > 0",
		},
		{
			name:    "Вес +Inf",
			mutate:  func(r *models.CreateVaultItemRequest) { r.WeightValue.Value = math.Inf(1) },
			wantMsg: "weight_value must be > 0",
		},
		{
			name:    "Проба NaN",
			mutate:  func(r *models.CreateVaultItemRequest) { r.Purity.Value = math.NaN() },
			wantMsg: "purity must be between 0 and 1",
		},
		{
			name: "Премия NaN",
			mutate: func(r *models.CreateVaultItemRequest) {
				r.PremiumPct = models.NullableFloat{Set: true, Value: math.NaN()}
			},
			wantMsg: "premium_pct out of range (0-500)",
		},
		{
			name: "Премия +Inf",
			mutate: func(r *models.CreateVaultItemRequest) {
				r.PremiumPct = models.NullableFloat{Set: true, Value: math.Inf(1)}
			},
			wantMsg: "premium_pct out of range (0-500)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.VaultItemRepository)
			req := valid()
			tt.mutate(&req)

			_, err := newVaultService(repo).Create(context.Background(), "user_1", req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.EqualError(t, err, tt.wantMsg)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestVaultItemService_UpdateRejectsNonFinitePremium(t *testing.T) {
	repo := new(mocks.VaultItemRepository)
	_, err := newVaultService(repo).Update(context.Background(), "user_1", 1, models.UpdateVaultItemRequest{
		PremiumPct: models.NullableFloat{Set: true, Value: math.NaN()},
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVaultItemService_CreateConstraintViolation(t *testing.T) {
	repo := new(mocks.VaultItemRepository)
	repo.EXPECT().Create(mock.Anything, "user_1", mock.Anything).
		Return(nil, &pq.Error{Code: "23514"}).Once()

	_, err := newVaultService(repo).Create(context.Background(), "user_1",
		decode[models.CreateVaultItemRequest](t, `{"label":"a","metal":"gold","weight_value":1,"weight_unit":"g","purity":1}`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVaultItemService_Update(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		mockSetup func(repo *mocks.VaultItemRepository)
		wantKind  apperr.Kind
		wantErr   bool
	}{
		{
			name: "Пустая секция становится Main, null-слот сбрасывается",
			body: `{"shelf_section":"  ","shelf_slot":null,"qty":null}`,
			mockSetup: func(repo *mocks.VaultItemRepository) {
				repo.EXPECT().Update(mock.Anything, "user_1", int64(5), mock.MatchedBy(func(p models.VaultItemPatch) bool {
					return p.ShelfSection != nil && *p.ShelfSection == "Main" &&
						p.SetShelfSlot && p.ShelfSlot == nil &&
						p.Qty != nil && *p.Qty == 1
				})).Return(&models.VaultItem{ID: 5}, nil).Once()
			},
		},
		{
			name:      "Нечего обновлять",
			body:      `{"unknown":1}`,
			mockSetup: func(*mocks.VaultItemRepository) {},
			wantErr:   true,
			wantKind:  apperr.KindValidation,
		},
		{
			name:      "Премия вне диапазона",
			body:      `{"premium_pct":-1}`,
			mockSetup: func(*mocks.VaultItemRepository) {},
			wantErr:   true,
			wantKind:  apperr.KindValidation,
		},
		{
			name: "Чужой предмет",
			body: `{"notes":"x"}`,
			mockSetup: func(repo *mocks.VaultItemRepository) {
				repo.EXPECT().Update(mock.Anything, "user_1", int64(5), mock.Anything).
					Return(nil, repository.ErrItemNotFound).Once()
			},
			wantErr:  true,
			wantKind: apperr.KindNotFound,
		},
		{
			name: "Ошибка БД",
			body: `{"notes":"x"}`,
			mockSetup: func(repo *mocks.VaultItemRepository) {
				repo.EXPECT().Update(mock.Anything, "user_1", int64(5), mock.Anything).
					Return(nil, errors.New("conn reset")).Once()
			},
			wantErr:  true,
			wantKind: apperr.KindStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.VaultItemRepository)
			tt.mockSetup(repo)

			_, err := newVaultService(repo).Update(context.Background(), "user_1", 5,
				decode[models.UpdateVaultItemRequest](t, tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestVaultItemService_Delete(t *testing.T) {
	repo := new(mocks.VaultItemRepository)
	repo.EXPECT().Delete(mock.Anything, "user_2", int64(7)).Return(repository.ErrItemNotFound).Once()
	repo.EXPECT().Delete(mock.Anything, "user_1", int64(7)).Return(nil).Once()
	svc := newVaultService(repo)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Delete(context.Background(), "user_2", 7)))
	assert.NoError(t, svc.Delete(context.Background(), "user_1", 7))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(svc.Delete(context.Background(), "user_1", 0)))
	repo.AssertExpectations(t)
}

func TestVaultItemService_Reorder(t *testing.T) {
	t.Run("Перемещения нормализуются и ограничиваются", func(t *testing.T) {
		repo := new(mocks.VaultItemRepository)
		body := `{"moves":[
			{"id":"1","shelf_section":"Coins","shelf_slot":"3"},
			{"id":2,"shelf_slot":null},
			{"id":3,"shelf_section":""},
			{"id":0,"shelf_slot":1},
			{"id":4,"shelf_slot":2000000}
		]}`

		var captured []models.ShelfMove
		repo.EXPECT().Reorder(mock.Anything, "user_1", mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(2).([]models.ShelfMove) }).
			Return(3, nil).Once()

		n, err := newVaultService(repo).Reorder(context.Background(), "user_1", decode[models.ReorderRequest](t, body))
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		require.Len(t, captured, 4, "id 0 пропускается")
		assert.Equal(t, "Coins", *captured[0].ShelfSection)
		assert.Equal(t, 3, *captured[0].ShelfSlot)
		assert.True(t, captured[1].SetShelfSlot)
		assert.Nil(t, captured[1].ShelfSlot)
		assert.Nil(t, captured[2].ShelfSection, "пустая секция не меняется")
		assert.False(t, captured[2].SetShelfSlot)
		assert.Equal(t, services.MaxShelfSlot, *captured[3].ShelfSlot)
	})

	t.Run("Не больше 500 перемещений", func(t *testing.T) {
		repo := new(mocks.VaultItemRepository)
		moves := make([]models.ReorderMoveRequest, 600)
		for i := range moves {
			moves[i] = models.ReorderMoveRequest{ID: models.FlexID(i + 1), ShelfSlot: models.NullableInt{Set: true, Value: i}}
		}
		repo.EXPECT().Reorder(mock.Anything, "user_1", mock.MatchedBy(func(m []models.ShelfMove) bool {
			return len(m) == services.MaxReorderMoves
		})).Return(500, nil).Once()

		n, err := newVaultService(repo).Reorder(context.Background(), "user_1", models.ReorderRequest{Moves: moves})
		require.NoError(t, err)
		assert.Equal(t, 500, n)
		repo.AssertExpectations(t)
	})

	t.Run("Пустой список", func(t *testing.T) {
		repo := new(mocks.VaultItemRepository)
		_, err := newVaultService(repo).Reorder(context.Background(), "user_1", models.ReorderRequest{})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})
}

func TestVaultItemService_List(t *testing.T) {
	t.Run("Лимит ограничивается и секции возвращаются", func(t *testing.T) {
		repo := new(mocks.VaultItemRepository)
		repo.EXPECT().List(mock.Anything, "user_1", models.VaultItemFilter{Section: "Coins", ItemType: "coin", Limit: 500}).
			Return([]models.VaultItem{{ID: 1}}, nil).Once()
		repo.EXPECT().SectionCounts(mock.Anything, "user_1").
			Return([]models.SectionCount{{Section: "Coins", Count: 1}}, nil).Once()

		items, meta, err := newVaultService(repo).List(context.Background(), "user_1",
			services.VaultListQuery{Section: " Coins ", Type: "COIN", Limit: 10000})
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Equal(t, 1, meta.Count)
		assert.Equal(t, 500, meta.Limit)
		assert.Equal(t, []models.SectionCount{{Section: "Coins", Count: 1}}, meta.Sections)
		repo.AssertExpectations(t)
	})

	t.Run("Пустой список - не nil", func(t *testing.T) {
		repo := new(mocks.VaultItemRepository)
		repo.EXPECT().List(mock.Anything, "user_1", mock.Anything).Return(nil, nil).Once()
		repo.EXPECT().SectionCounts(mock.Anything, "user_1").Return(nil, nil).Once()

		items, meta, err := newVaultService(repo).List(context.Background(), "user_1", services.VaultListQuery{Limit: 200})
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.NotNil(t, meta.Sections)
	})

	t.Run("Неверный фильтр типа", func(t *testing.T) {
		repo := new(mocks.VaultItemRepository)
		_, _, err := newVaultService(repo).List(context.Background(), "user_1", services.VaultListQuery{Type: "spoon", Limit: 1})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})
}
