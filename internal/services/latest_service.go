package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/leoygitty/GSR-App/internal/events"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/pricing"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/sirupsen/logrus"
)

// Параметры запроса latest.
const (
	DefaultHistoryLimit = 5000
	MaxHistoryLimit     = 20000
	DefaultStaleAfter   = 60
	MaxStaleAfter       = 1440

	// ForceCooldown - минимальный возраст снимка, после которого force
	// действительно обращается к источнику котировок.
	ForceCooldown = 2 * time.Minute
)

// Текст диагностики при занятой блокировке.
const diagNoLock = "did not get lock"

const noDataHint = "Run the backfill (POST /api/cron/backfill) or wait for the scheduled refresh (/api/cron/refresh)."

// ErrRefreshInProgress - обновление уже выполняется другим запросом или экземпляром.
var ErrRefreshInProgress = errors.New("обновление котировок уже выполняется")

// LatestOptions - проверенные параметры запроса latest.
type LatestOptions struct {
	HistoryLimit      int
	Force             bool
	StaleAfterMinutes int
}

// LatestService отдает последний снимок и историю, при необходимости
// обновляя сегодняшний снимок из внешнего источника.
type LatestService interface {
	Latest(ctx context.Context, opts LatestOptions) (*models.LatestResult, error)
	Refresh(ctx context.Context, method string) (*models.PriceSnapshot, error)
}

var _ LatestService = (*latestService)(nil)

type latestService struct {
	repo      repository.PriceRepository
	source    pricing.Source
	locker    repository.Locker
	publisher events.Publisher
	now       cache.Clock
	log       logrus.FieldLogger
}

// NewLatestService создает сервис. nil-издатель заменяется на NoopPublisher,
// nil-часы - на системные.
func NewLatestService(
	repo repository.PriceRepository,
	source pricing.Source,
	locker repository.Locker,
	publisher events.Publisher,
	clock cache.Clock,
	log logrus.FieldLogger,
) LatestService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if clock == nil {
		clock = cache.SystemClock
	}
	return &latestService{
		repo:      repo,
		source:    source,
		locker:    locker,
		publisher: publisher,
		now:       clock,
		log:       log,
	}
}

// ClampHistoryLimit приводит размер истории к [1, MaxHistoryLimit].
func ClampHistoryLimit(n int) int {
	return clampInt(n, 1, MaxHistoryLimit)
}

// ClampStaleAfter приводит окно устаревания (минуты) к [1, MaxStaleAfter].
func ClampStaleAfter(n int) int {
	return clampInt(n, 1, MaxStaleAfter)
}

// Latest возвращает сегодняшний (или последний доступный) снимок и историю
// по возрастанию даты. Ошибка источника котировок не прерывает запрос,
// а попадает в диагностику.
func (s *latestService) Latest(ctx context.Context, opts LatestOptions) (*models.LatestResult, error) {
	limit := ClampHistoryLimit(opts.HistoryLimit)
	staleAfter := ClampStaleAfter(opts.StaleAfterMinutes)

	now := s.now().UTC()
	today := models.TruncateToDate(now)
	diag := models.LatestDiagnostics{
		Today:             today.Format(models.DateLayout),
		Force:             opts.Force,
		StaleAfterMinutes: staleAfter,
	}

	row, err := s.getByDate(ctx, today)
	if err != nil {
		return nil, err
	}

	window := time.Duration(staleAfter) * time.Minute
	if opts.Force && ForceCooldown < window {
		window = ForceCooldown
	}
	diag.Stale = row == nil || row.FetchedAt.Before(now.Add(-window))

	if diag.Stale {
		s.selfHeal(ctx, now, &diag)
		if row, err = s.getByDate(ctx, today); err != nil {
			return nil, err
		}
	}

	if row == nil {
		row, err = s.repo.GetLatest(ctx)
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return nil, apperr.NotFound("No data yet", noDataHint)
		}
		if err != nil {
			s.log.WithError(err).Error("[LatestService] Ошибка чтения последнего снимка")
			return nil, apperr.Storage("failed to read latest snapshot", err)
		}
		diag.FellBack = true
	}

	history, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		s.log.WithError(err).Error("[LatestService] Ошибка чтения истории")
		return nil, apperr.Storage("failed to read history", err)
	}
	reverseSnapshots(history)

	return &models.LatestResult{Latest: *row, History: history, Diagnostics: diag}, nil
}

// selfHeal пытается обновить сегодняшний снимок под блокировкой.
// Блокировка освобождается на любом пути выхода.
func (s *latestService) selfHeal(ctx context.Context, now time.Time, diag *models.LatestDiagnostics) {
	release, acquired, err := s.locker.TryLock(ctx, repository.LockDailyRefresh)
	if err != nil {
		s.log.WithError(err).Warn("[LatestService] Не удалось запросить блокировку обновления")
		diag.Error = diagNoLock
		return
	}
	if !acquired {
		diag.Error = diagNoLock
		return
	}
	defer release()

	diag.LockAcquired = true
	diag.RefreshAttempted = true
	if _, err := s.fetchAndStore(ctx, now, models.MethodSelfHeal); err != nil {
		s.log.WithError(err).Warn("[LatestService] Самовосстановление не удалось, данные не изменены")
		diag.Error = err.Error()
		return
	}
	diag.Refreshed = true
}

// Refresh безусловно обновляет сегодняшний снимок. Используется плановым
// обновлением и командой refresh.
func (s *latestService) Refresh(ctx context.Context, method string) (*models.PriceSnapshot, error) {
	release, acquired, err := s.locker.TryLock(ctx, repository.LockDailyRefresh)
	if err != nil {
		return nil, apperr.Storage("failed to acquire refresh lock", err)
	}
	if !acquired {
		return nil, ErrRefreshInProgress
	}
	defer release()

	snap, err := s.fetchAndStore(ctx, s.now().UTC(), method)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// fetchAndStore получает котировку и сохраняет снимок за дату now.
func (s *latestService) fetchAndStore(ctx context.Context, now time.Time, method string) (models.PriceSnapshot, error) {
	quote, err := s.source.FetchSpot(ctx)
	if err != nil {
		return models.PriceSnapshot{}, err
	}

	fetchedAt := quote.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}
	snap, err := models.NewPriceSnapshot(now, quote.Gold, quote.Silver, fetchedAt, models.Provenance{
		Provider: quote.Provider,
		Method:   method,
		Symbols:  quote.Symbols,
		Notes:    quote.Notes,
		RunID:    uuid.NewString(),
	})
	if err != nil {
		return models.PriceSnapshot{}, apperr.Upstream("invalid quote", err)
	}

	if err := s.repo.Upsert(ctx, snap); err != nil {
		s.log.WithError(err).Error("[LatestService] Ошибка сохранения снимка")
		return models.PriceSnapshot{}, apperr.Storage("failed to store snapshot", err)
	}

	s.log.WithFields(logrus.Fields{
		"date":     snap.Date.Format(models.DateLayout),
		"gold":     snap.GoldUSD.String(),
		"silver":   snap.SilverUSD.String(),
		"ratio":    snap.Ratio.StringFixed(4),
		"provider": quote.Provider,
		"method":   method,
	}).Info("[LatestService] Снимок цен обновлен")

	if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
		s.log.WithError(err).Warn("[LatestService] Не удалось опубликовать событие обновления")
	}
	return snap, nil
}

func (s *latestService) getByDate(ctx context.Context, day time.Time) (*models.PriceSnapshot, error) {
	row, err := s.repo.GetByDate(ctx, day)
	if errors.Is(err, repository.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		s.log.WithError(err).Error("[LatestService] Ошибка чтения снимка за дату")
		return nil, apperr.Storage("failed to read snapshot", err)
	}
	return row, nil
}

func reverseSnapshots(s []models.PriceSnapshot) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
