package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/leoygitty/GSR-App/internal/config"
	"github.com/leoygitty/GSR-App/internal/events"
	"github.com/leoygitty/GSR-App/internal/handlers"
	"github.com/leoygitty/GSR-App/internal/migrations"
	"github.com/leoygitty/GSR-App/internal/pricing"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/leoygitty/GSR-App/internal/services"
	"github.com/leoygitty/GSR-App/internal/storage"
	_ "github.com/lib/pq" // Драйвер PostgreSQL
	"github.com/sirupsen/logrus"
)

// Подменяются в тестах.
var (
	newPostgresDB = repository.NewPostgresDB
	newPublisher  = func(cfg config.RabbitConfig, log logrus.FieldLogger) (events.Publisher, error) {
		return events.NewAMQPPublisher(cfg.URL, cfg.Exchange, log)
	}
	newArchive = func(ctx context.Context, cfg config.MinioConfig, log logrus.FieldLogger) (storage.ArchiveStorage, error) {
		return storage.NewMinioArchive(ctx, storage.MinioConfig{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.User,
			SecretAccessKey: cfg.Password,
			UseSSL:          cfg.UseSSL,
			BucketName:      cfg.Bucket,
		}, log)
	}
	runMigrations = migrations.Up
)

// dependencies - инициализированные зависимости сервиса.
type dependencies struct {
	db        *sqlx.DB
	publisher events.Publisher
	archive   storage.ArchiveStorage

	latest   services.LatestService
	backfill services.BackfillService
	vault    services.VaultItemService
	auth     services.AuthService
	spot     pricing.Source
}

// setupDependencies подключается к БД, брокеру и архиву и собирает сервисы.
// Брокер и архив необязательны: пустой адрес отключает их.
func setupDependencies(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*dependencies, error) {
	dsn, err := config.NormalizeDSN(cfg.DatabaseDSN, cfg.DBSSLMode)
	if err != nil {
		return nil, fmt.Errorf("ошибка конфигурации БД: %w", err)
	}

	deps := &dependencies{publisher: events.NoopPublisher{}}
	deps.db, err = newPostgresDB(ctx, dsn, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации БД: %w", err)
	}

	if cfg.AutoMigrate {
		if err = runMigrations(ctx, deps.db.DB, log); err != nil {
			deps.close(log)
			return nil, fmt.Errorf("ошибка миграции БД: %w", err)
		}
	}

	if cfg.Rabbit.URL != "" {
		deps.publisher, err = newPublisher(cfg.Rabbit, log)
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("ошибка подключения к RabbitMQ: %w", err)
		}
	} else {
		log.Info("[Setup] RABBITMQ_URL не задан, события не публикуются")
	}

	if cfg.Minio.Endpoint != "" {
		deps.archive, err = newArchive(ctx, cfg.Minio, log)
		if err != nil {
			deps.close(log)
			return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
		}
	} else {
		log.Info("[Setup] MINIO_ENDPOINT не задан, архив выгрузок отключен")
	}

	client := pricing.NewHTTPClient(cfg.UpstreamTimeout)
	clock := cache.SystemClock
	chain := pricing.NewChainSource(log,
		pricing.NewYahooSource(client, "").WithClock(clock),
		pricing.NewStooqSource(client, "").WithClock(clock),
	)
	deps.spot = pricing.NewCachedSource(chain, cfg.QuoteCacheTTL, clock)

	locker := repository.NewPostgresLocker(deps.db, log)
	prices := repository.NewPostgresPriceRepository(deps.db, log)

	deps.latest = services.NewLatestService(prices, chain, locker, deps.publisher, clock, log)
	deps.backfill = services.NewBackfillService(
		pricing.NewStooqHistory(client, ""), prices, locker, deps.archive, clock, log)
	deps.vault = services.NewVaultItemService(repository.NewPostgresVaultItemRepository(deps.db, log), log)
	deps.auth = services.NewAuthService(cfg.Auth, nil, clock, log)

	return deps, nil
}

// routes собирает обработчики для роутера.
func (d *dependencies) routes(cfg *config.Config, log logrus.FieldLogger) routes {
	return routes{
		price:      handlers.NewPriceHandler(d.latest, d.spot, log),
		cron:       handlers.NewCronHandler(d.latest, d.backfill, log),
		vault:      handlers.NewVaultItemHandler(d.vault, log),
		verifier:   d.auth,
		cronSecret: cfg.CronSecret,
		trustCron:  cfg.TrustCronHeader,
	}
}

// close освобождает соединения. Повторный вызов безопасен.
func (d *dependencies) close(log logrus.FieldLogger) {
	var errs []error
	if d.publisher != nil {
		errs = append(errs, d.publisher.Close())
		d.publisher = nil
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
		d.db = nil
	}
	if err := errors.Join(errs...); err != nil {
		log.WithError(err).Warn("[Setup] Ошибка закрытия зависимостей")
	}
}

// newServer создает HTTP-сервер с таймаутами.
func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
}
