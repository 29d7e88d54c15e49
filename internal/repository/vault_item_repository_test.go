package repository_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var itemCols = []string{
	"id", "user_id", "label", "metal", "item_type", "weight_value", "weight_unit", "purity", "premium_pct",
	"notes", "source", "shelf_section", "shelf_slot", "accent", "qty", "created_at",
}

func setupVaultItemRepoMock(t *testing.T) (repository.VaultItemRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger, _ := test.NewNullLogger()
	return repository.NewPostgresVaultItemRepository(sqlx.NewDb(db, "sqlmock"), logger), mock
}

func itemRow(rows *sqlmock.Rows, id int64, section string, slot any) *sqlmock.Rows {
	return rows.AddRow(id, "user_1", "Maple Leaf", "gold", "coin", 1.0, "oz", 0.9999, nil,
		"", "manual", section, slot, "gold", 1, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
}

func TestVaultItemRepository_List(t *testing.T) {
	tests := []struct {
		name     string
		filter   models.VaultItemFilter
		query    string
		args     []driver.Value
		expected int
	}{
		{
			name:     "Без фильтров",
			filter:   models.VaultItemFilter{Limit: 200},
			query:    `FROM vault_items WHERE user_id = $1 ORDER BY coalesce(shelf_section, 'Main') ASC, coalesce(shelf_slot, 999999) ASC, created_at DESC LIMIT $2`,
			args:     []driver.Value{"user_1", 200},
			expected: 2,
		},
		{
			name:   "Фильтр по секции и типу",
			filter: models.VaultItemFilter{Section: "Coins", ItemType: "coin", Limit: 10},
			query: `WHERE user_id = $1 AND coalesce(shelf_section, 'Main') = $2 AND item_type = $3 ` +
				`ORDER BY coalesce(shelf_section, 'Main') ASC, coalesce(shelf_slot, 999999) ASC, created_at DESC LIMIT $4`,
			args:     []driver.Value{"user_1", "Coins", "coin", 10},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupVaultItemRepoMock(t)
			rows := sqlmock.NewRows(itemCols)
			itemRow(rows, 1, "Coins", 0)
			itemRow(rows, 2, "Coins", nil)

			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).WithArgs(tt.args...).WillReturnRows(rows)

			items, err := repo.List(context.Background(), "user_1", tt.filter)
			require.NoError(t, err)
			require.Len(t, items, tt.expected)
			assert.Equal(t, int64(1), items[0].ID)
			require.NotNil(t, items[0].ShelfSlot)
			assert.Equal(t, 0, *items[0].ShelfSlot)
			assert.Nil(t, items[1].ShelfSlot)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestVaultItemRepository_SectionCounts(t *testing.T) {
	repo, mock := setupVaultItemRepoMock(t)
	rows := sqlmock.NewRows([]string{"section", "count"}).AddRow("Coins", 3).AddRow("Main", 1)
	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY coalesce(shelf_section, 'Main')`)).WithArgs("user_1").WillReturnRows(rows)

	counts, err := repo.SectionCounts(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, []models.SectionCount{{Section: "Coins", Count: 3}, {Section: "Main", Count: 1}}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVaultItemRepository_Create(t *testing.T) {
	accent := "gold"
	fields := models.VaultItemFields{
		Label: "Maple Leaf", Metal: "gold", ItemType: "coin", WeightValue: 1, WeightUnit: "oz",
		Purity: 0.9999, Source: "manual", ShelfSection: "Coins", Accent: &accent, Qty: 1,
	}

	t.Run("Автоматический слот", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		rows := sqlmock.NewRows(itemCols)
		itemRow(rows, 10, "Coins", 0)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT coalesce(max(shelf_slot), -1) + 1 FROM vault_items`)).
			WithArgs("user_1", "Maple Leaf", "gold", "coin", 1.0, "oz", 0.9999, nil,
				"", "manual", "Coins", nil, "gold", 1).
			WillReturnRows(rows)

		item, err := repo.Create(context.Background(), "user_1", fields)
		require.NoError(t, err)
		assert.Equal(t, int64(10), item.ID)
		assert.Equal(t, "Coins", item.ShelfSection)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Ошибка ограничения БД", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO vault_items`)).WillReturnError(errors.New("check violation"))

		_, err := repo.Create(context.Background(), "user_1", fields)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVaultItemRepository_Update(t *testing.T) {
	section := "Bullion"
	qty := 3

	t.Run("Обновление нескольких полей", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		rows := sqlmock.NewRows(itemCols)
		itemRow(rows, 5, "Bullion", nil)
		mock.ExpectQuery(regexp.QuoteMeta(
			`UPDATE vault_items SET shelf_section = $1, shelf_slot = $2, premium_pct = $3, qty = $4 WHERE id = $5 AND user_id = $6`)).
			WithArgs("Bullion", nil, nil, 3, int64(5), "user_1").
			WillReturnRows(rows)

		item, err := repo.Update(context.Background(), "user_1", 5, models.VaultItemPatch{
			ShelfSection:  &section,
			SetShelfSlot:  true,
			SetPremiumPct: true,
			Qty:           &qty,
		})
		require.NoError(t, err)
		assert.Equal(t, "Bullion", item.ShelfSection)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Чужой предмет", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE vault_items SET qty = $1 WHERE id = $2 AND user_id = $3`)).
			WithArgs(3, int64(5), "user_2").
			WillReturnRows(sqlmock.NewRows(itemCols))

		_, err := repo.Update(context.Background(), "user_2", 5, models.VaultItemPatch{Qty: &qty})
		assert.ErrorIs(t, err, repository.ErrItemNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Пустой патч", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		_, err := repo.Update(context.Background(), "user_1", 5, models.VaultItemPatch{})
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVaultItemRepository_Delete(t *testing.T) {
	query := regexp.QuoteMeta(`DELETE FROM vault_items WHERE id = $1 AND user_id = $2`)

	t.Run("Удален", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		mock.ExpectExec(query).WithArgs(int64(7), "user_1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.Delete(context.Background(), "user_1", 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Чужой или несуществующий", func(t *testing.T) {
		repo, mock := setupVaultItemRepoMock(t)
		mock.ExpectExec(query).WithArgs(int64(7), "user_2").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.Delete(context.Background(), "user_2", 7), repository.ErrItemNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVaultItemRepository_Reorder(t *testing.T) {
	repo, mock := setupVaultItemRepoMock(t)
	coins := "Coins"
	slot := 2

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE vault_items SET shelf_section = $1, shelf_slot = $2 WHERE id = $3 AND user_id = $4`)).
		WithArgs("Coins", 2, int64(1), "user_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Чужой предмет: строка не обновилась и не засчитывается
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE vault_items SET shelf_slot = $1 WHERE id = $2 AND user_id = $3`)).
		WithArgs(nil, int64(99), "user_1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	updated, err := repo.Reorder(context.Background(), "user_1", []models.ShelfMove{
		{ID: 1, ShelfSection: &coins, SetShelfSlot: true, ShelfSlot: &slot},
		{ID: 99, SetShelfSlot: true},
		{ID: 3}, // нечего менять
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
