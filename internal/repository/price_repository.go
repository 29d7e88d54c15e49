package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/sirupsen/logrus"
)

// PriceRepository определяет методы для работы с дневными снимками цен.
type PriceRepository interface {
	GetByDate(ctx context.Context, date time.Time) (*models.PriceSnapshot, error)
	GetLatest(ctx context.Context) (*models.PriceSnapshot, error)
	ListRecent(ctx context.Context, limit int) ([]models.PriceSnapshot, error)
	Upsert(ctx context.Context, snap models.PriceSnapshot) error
	UpsertBatch(ctx context.Context, snaps []models.PriceSnapshot) (int, error)
}

// ErrSnapshotNotFound - снимка за дату (или вообще ни одного) нет.
var ErrSnapshotNotFound = errors.New("снимок цен не найден")

const snapshotColumns = `d, gold_usd, silver_usd, gsr, fetched_at_utc, source`

const upsertSnapshotQuery = `INSERT INTO gsr_daily (d, gold_usd, silver_usd, gsr, fetched_at_utc, source)
	VALUES ($1::date, $2, $3, $4, $5, $6::jsonb)
	ON CONFLICT (d) DO UPDATE SET
		gold_usd = EXCLUDED.gold_usd,
		silver_usd = EXCLUDED.silver_usd,
		gsr = EXCLUDED.gsr,
		fetched_at_utc = EXCLUDED.fetched_at_utc,
		source = EXCLUDED.source`

// postgresPriceRepository реализует PriceRepository для PostgreSQL.
type postgresPriceRepository struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// NewPostgresPriceRepository создает репозиторий снимков цен.
func NewPostgresPriceRepository(db *sqlx.DB, log logrus.FieldLogger) PriceRepository {
	return &postgresPriceRepository{db: db, log: log}
}

// GetByDate возвращает снимок за календарную дату UTC или ErrSnapshotNotFound.
func (r *postgresPriceRepository) GetByDate(ctx context.Context, date time.Time) (*models.PriceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM gsr_daily WHERE d = $1::date`
	day := models.TruncateToDate(date).Format(models.DateLayout)

	var snap models.PriceSnapshot
	if err := r.db.GetContext(ctx, &snap, query, day); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		r.log.WithError(err).WithField("date", day).Error("[PriceRepo] Ошибка чтения снимка за дату")
		return nil, fmt.Errorf("ошибка выполнения запроса на получение снимка: %w", err)
	}
	return &snap, nil
}

// GetLatest возвращает самый свежий по дате снимок или ErrSnapshotNotFound.
func (r *postgresPriceRepository) GetLatest(ctx context.Context) (*models.PriceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM gsr_daily ORDER BY d DESC LIMIT 1`

	var snap models.PriceSnapshot
	if err := r.db.GetContext(ctx, &snap, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		r.log.WithError(err).Error("[PriceRepo] Ошибка чтения последнего снимка")
		return nil, fmt.Errorf("ошибка выполнения запроса на получение последнего снимка: %w", err)
	}
	return &snap, nil
}

// ListRecent возвращает до limit последних снимков, от новых к старым.
func (r *postgresPriceRepository) ListRecent(ctx context.Context, limit int) ([]models.PriceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM gsr_daily ORDER BY d DESC LIMIT $1`

	snaps := make([]models.PriceSnapshot, 0, min(limit, 512))
	if err := r.db.SelectContext(ctx, &snaps, query, limit); err != nil {
		r.log.WithError(err).WithField("limit", limit).Error("[PriceRepo] Ошибка чтения истории")
		return nil, fmt.Errorf("ошибка выполнения запроса на получение истории: %w", err)
	}
	return snaps, nil
}

// Upsert вставляет или заменяет снимок за его дату.
func (r *postgresPriceRepository) Upsert(ctx context.Context, snap models.PriceSnapshot) error {
	args, err := snapshotArgs(snap)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertSnapshotQuery, args...); err != nil {
		r.log.WithError(err).WithField("date", snap.Date.Format(models.DateLayout)).
			Error("[PriceRepo] Ошибка сохранения снимка")
		return fmt.Errorf("ошибка выполнения запроса на сохранение снимка: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"date": snap.Date.Format(models.DateLayout),
		"gsr":  snap.Ratio.StringFixed(4),
	}).Info("[PriceRepo] Снимок цен сохранен")
	return nil
}

// UpsertBatch сохраняет снимки одной транзакцией. Возвращает число записанных строк.
func (r *postgresPriceRepository) UpsertBatch(ctx context.Context, snaps []models.PriceSnapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		// Rollback после Commit возвращает sql.ErrTxDone, это нормально
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.WithError(rbErr).Warn("[PriceRepo] Ошибка отката транзакции")
		}
	}()

	stmt, err := tx.PreparexContext(ctx, upsertSnapshotQuery)
	if err != nil {
		return 0, fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		args, err := snapshotArgs(snap)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("ошибка сохранения снимка за %s: %w", snap.Date.Format(models.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	r.log.WithField("rows", len(snaps)).Info("[PriceRepo] Пакет снимков сохранен")
	return len(snaps), nil
}

// snapshotArgs готовит аргументы upsert. Соотношение всегда пересчитывается из цен.
func snapshotArgs(snap models.PriceSnapshot) ([]any, error) {
	ratio, err := models.ComputeRatio(snap.GoldUSD, snap.SilverUSD)
	if err != nil {
		return nil, err
	}
	return []any{
		models.TruncateToDate(snap.Date).Format(models.DateLayout),
		snap.GoldUSD,
		snap.SilverUSD,
		ratio,
		snap.FetchedAt.UTC(),
		snap.Source,
	}, nil
}
