package services

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/pricing"
	"github.com/leoygitty/GSR-App/internal/repository"
	"github.com/leoygitty/GSR-App/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Символы дневных рядов для загрузки истории.
const (
	BackfillGoldSymbol   = "xauusd"
	BackfillSilverSymbol = "xagusd"

	backfillKind = "daily_eod_close"
	backfillNote = "Backfilled from public daily CSV series; not intraday spot."
)

// ErrBackfillInProgress - загрузка истории уже выполняется.
var ErrBackfillInProgress = errors.New("загрузка истории уже выполняется")

// BackfillService загружает дневную историю цен.
type BackfillService interface {
	Run(ctx context.Context) (*models.BackfillSummary, error)
}

var _ BackfillService = (*backfillService)(nil)

type backfillService struct {
	history pricing.HistorySource
	repo    repository.PriceRepository
	locker  repository.Locker
	archive storage.ArchiveStorage
	now     cache.Clock
	log     logrus.FieldLogger
}

// NewBackfillService создает сервис. archive может быть nil - тогда
// исходные CSV не архивируются.
func NewBackfillService(
	history pricing.HistorySource,
	repo repository.PriceRepository,
	locker repository.Locker,
	archive storage.ArchiveStorage,
	clock cache.Clock,
	log logrus.FieldLogger,
) BackfillService {
	if clock == nil {
		clock = cache.SystemClock
	}
	return &backfillService{
		history: history,
		repo:    repo,
		locker:  locker,
		archive: archive,
		now:     clock,
		log:     log,
	}
}

// Run скачивает ряды золота и серебра параллельно, пересекает даты
// и сохраняет все снимки одной транзакцией.
func (s *backfillService) Run(ctx context.Context) (*models.BackfillSummary, error) {
	release, acquired, err := s.locker.TryLock(ctx, repository.LockBackfill)
	if err != nil {
		return nil, apperr.Storage("failed to acquire backfill lock", err)
	}
	if !acquired {
		return nil, ErrBackfillInProgress
	}
	defer release()

	var gold, silver pricing.DailySeries
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		gold, err = s.history.FetchDaily(gctx, BackfillGoldSymbol)
		return err
	})
	g.Go(func() error {
		var err error
		silver, err = s.history.FetchDaily(gctx, BackfillSilverSymbol)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.WithError(err).Error("[Backfill] Ошибка загрузки дневных рядов")
		if apperr.KindOf(err) == apperr.KindUpstream {
			return nil, err
		}
		return nil, apperr.Upstream("failed to fetch daily series", err)
	}

	dates := commonDates(gold.Closes, silver.Closes)
	if len(dates) == 0 {
		return nil, apperr.Upstream("No overlapping dates between XAUUSD and XAGUSD series", nil)
	}

	now := s.now().UTC()
	runID := uuid.NewString()
	keys := s.archiveSeries(ctx, now, runID, gold, silver)

	source := models.Provenance{
		Provider:    s.history.Name(),
		Method:      models.MethodManualBackfill,
		Kind:        backfillKind,
		Symbols:     map[string]string{"gold": BackfillGoldSymbol, "silver": BackfillSilverSymbol},
		Notes:       []string{backfillNote},
		RunID:       runID,
		ArchiveKeys: keys,
	}

	snaps := make([]models.PriceSnapshot, 0, len(dates))
	for _, d := range dates {
		day, err := parseDate(d)
		if err != nil {
			continue
		}
		snap, err := models.NewPriceSnapshot(day, gold.Closes[d], silver.Closes[d], now, source)
		if err != nil {
			// Нулевое серебро или золото в ряду пропускаем
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, apperr.Upstream("No usable rows in XAUUSD and XAGUSD series", nil)
	}

	n, err := s.repo.UpsertBatch(ctx, snaps)
	if err != nil {
		s.log.WithError(err).Error("[Backfill] Ошибка сохранения истории")
		return nil, apperr.Storage("failed to store history", err)
	}

	summary := &models.BackfillSummary{
		RowsUpserted: n,
		Start:        snaps[0].Date.Format(models.DateLayout),
		End:          snaps[len(snaps)-1].Date.Format(models.DateLayout),
		Series:       []string{BackfillGoldSymbol, BackfillSilverSymbol},
		ArchiveKeys:  keys,
	}
	s.log.WithFields(logrus.Fields{
		"rows":   summary.RowsUpserted,
		"start":  summary.Start,
		"end":    summary.End,
		"run_id": runID,
	}).Info("[Backfill] История загружена")
	return summary, nil
}

// archiveSeries сохраняет исходные CSV. Ошибки архива не прерывают загрузку.
func (s *backfillService) archiveSeries(
	ctx context.Context,
	now time.Time,
	runID string,
	series ...pricing.DailySeries,
) []string {
	if s.archive == nil {
		return nil
	}
	var keys []string
	for _, ds := range series {
		if len(ds.Raw) == 0 {
			continue
		}
		key := storage.BackfillKey(now, runID, ds.Symbol)
		if err := s.archive.UploadFile(ctx, key, bytes.NewReader(ds.Raw), int64(len(ds.Raw)), "text/csv"); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("[Backfill] Не удалось сохранить исходный CSV в архив")
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// commonDates возвращает отсортированные даты, присутствующие в обоих рядах.
func commonDates[V any](a, b map[string]V) []string {
	out := make([]string, 0, len(a))
	for d := range a {
		if _, ok := b[d]; ok {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout, s, time.UTC)
}
