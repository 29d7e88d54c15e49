//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/leoygitty/GSR-App/internal/migrations"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Запуск: go test -tags integration ./internal/repository/...
func TestPostgresIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("metalmetric"),
		postgres.WithUsername("metalmetric"),
		postgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	db, err := repository.NewPostgresDB(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.Up(ctx, db.DB, logger))
	// Повторный запуск ничего не меняет
	require.NoError(t, migrations.Up(ctx, db.DB, logger))

	t.Run("Upsert оставляет одну строку на дату", func(t *testing.T) {
		prices := repository.NewPostgresPriceRepository(db, logger)
		day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

		first, err := models.NewPriceSnapshot(day, decimal.NewFromInt(2600), decimal.NewFromInt(30), day, models.Provenance{Method: "a"})
		require.NoError(t, err)
		second, err := models.NewPriceSnapshot(day, decimal.NewFromInt(2650), decimal.NewFromInt(25), day.Add(time.Hour), models.Provenance{Method: "b"})
		require.NoError(t, err)

		require.NoError(t, prices.Upsert(ctx, first))
		require.NoError(t, prices.Upsert(ctx, second))

		var count int
		require.NoError(t, db.GetContext(ctx, &count, `SELECT count(*) FROM gsr_daily WHERE d = '2026-10-19'`))
		assert.Equal(t, 1, count)

		got, err := prices.GetByDate(ctx, day.Add(13*time.Hour))
		require.NoError(t, err)
		assert.True(t, got.GoldUSD.Equal(decimal.NewFromInt(2650)))
		assert.True(t, got.Ratio.Equal(decimal.NewFromInt(106)))
		assert.Equal(t, "b", got.Source.Method)
	})

	t.Run("Advisory-блокировка исключает второй захват", func(t *testing.T) {
		locker := repository.NewPostgresLocker(db, logger)

		release, ok, err := locker.TryLock(ctx, repository.LockDailyRefresh)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = locker.TryLock(ctx, repository.LockDailyRefresh)
		require.NoError(t, err)
		assert.False(t, ok)

		release()
		release2, ok, err := locker.TryLock(ctx, repository.LockDailyRefresh)
		require.NoError(t, err)
		assert.True(t, ok)
		release2()
	})

	t.Run("Слоты назначаются по порядку и изолированы по пользователю", func(t *testing.T) {
		items := repository.NewPostgresVaultItemRepository(db, logger)
		fields := models.VaultItemFields{
			Label: "Eagle", Metal: "gold", ItemType: "coin", WeightValue: 1, WeightUnit: "oz",
			Purity: 0.9167, Source: "manual", ShelfSection: "Coins", Qty: 1,
		}

		a, err := items.Create(ctx, "user_a", fields)
		require.NoError(t, err)
		b, err := items.Create(ctx, "user_a", fields)
		require.NoError(t, err)
		other, err := items.Create(ctx, "user_b", fields)
		require.NoError(t, err)

		require.NotNil(t, a.ShelfSlot)
		require.NotNil(t, b.ShelfSlot)
		require.NotNil(t, other.ShelfSlot)
		assert.Equal(t, 0, *a.ShelfSlot)
		assert.Equal(t, 1, *b.ShelfSlot)
		assert.Equal(t, 0, *other.ShelfSlot)

		assert.ErrorIs(t, items.Delete(ctx, "user_b", a.ID), repository.ErrItemNotFound)

		list, err := items.List(ctx, "user_a", models.VaultItemFilter{Limit: 200})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}
