package pricing

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// StooqBaseURL - адрес CSV-выгрузок Stooq.
	StooqBaseURL = "https://stooq.com"

	stooqProvider = "stooq"

	// Символы Stooq для спот-цен металлов.
	StooqGold     = "xauusd"
	StooqSilver   = "xagusd"
	StooqPlatinum = "xptusd"

	stooqMissing = "N/D"
	dateLayout   = "2006-01-02"
)

// ErrBadCSV - ответ Stooq не похож на ожидаемый CSV.
var ErrBadCSV = errors.New("unexpected CSV layout")

// StooqSource получает спот-цены из CSV-котировок Stooq.
type StooqSource struct {
	baseURL string
	client  *http.Client
	now     cache.Clock
}

// NewStooqSource создает источник Stooq. Пустой baseURL - публичный сайт.
func NewStooqSource(client *http.Client, baseURL string) *StooqSource {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if baseURL == "" {
		baseURL = StooqBaseURL
	}
	return &StooqSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     cache.SystemClock,
	}
}

// Name возвращает имя провайдера.
func (s *StooqSource) Name() string { return stooqProvider }

// WithClock подменяет часы источника (для тестов).
func (s *StooqSource) WithClock(clock cache.Clock) *StooqSource {
	s.now = clock
	return s
}

// FetchSpot запрашивает три символа параллельно. Платина необязательна.
func (s *StooqSource) FetchSpot(ctx context.Context) (Quote, error) {
	var gold, silver decimal.Decimal
	var platinum *decimal.Decimal

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.fetchClose(gctx, StooqGold)
		gold = v
		return err
	})
	g.Go(func() error {
		v, err := s.fetchClose(gctx, StooqSilver)
		silver = v
		return err
	})
	g.Go(func() error {
		// Ошибка платины не роняет котировку
		if v, err := s.fetchClose(gctx, StooqPlatinum); err == nil {
			platinum = &v
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Quote{}, upstream(stooqProvider, err)
	}

	q := Quote{
		Gold:     gold,
		Silver:   silver,
		Platinum: platinum,
		Provider: stooqProvider,
		Symbols: map[string]string{
			"gold":     StooqGold,
			"silver":   StooqSilver,
			"platinum": StooqPlatinum,
		},
		FetchedAt: s.now().UTC(),
	}

	normalizeStooq(&q)
	if err := validateQuote(&q); err != nil {
		return Quote{}, upstream(stooqProvider, err)
	}
	return q, nil
}

// fetchClose возвращает значение колонки Close для символа.
func (s *StooqSource) fetchClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/q/l/?s=%s&f=sd2t2ohlc&h&e=csv", s.baseURL, url.QueryEscape(symbol))
	body, err := fetchBody(ctx, s.client, endpoint, "text/csv")
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, err)
	}

	rows, closeIdx, _, err := readCSV(body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, err)
	}
	for _, row := range rows {
		if closeIdx >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[closeIdx])
		if raw == "" || strings.EqualFold(raw, stooqMissing) {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: parse close %q: %w", symbol, raw, err)
		}
		return v, nil
	}
	return decimal.Zero, fmt.Errorf("%s: %w", symbol, ErrMissingPrice)
}

// DailySeries - дневные цены закрытия одного символа.
type DailySeries struct {
	Symbol string
	// Closes - цена закрытия по дате YYYY-MM-DD.
	Closes map[string]decimal.Decimal
	// Raw - исходный CSV для архива.
	Raw []byte
}

// HistorySource отдает дневную историю цен.
type HistorySource interface {
	Name() string
	FetchDaily(ctx context.Context, symbol string) (DailySeries, error)
}

// StooqHistory читает дневной CSV Stooq (/q/d/l/).
type StooqHistory struct {
	baseURL string
	client  *http.Client
}

// NewStooqHistory создает источник истории Stooq.
func NewStooqHistory(client *http.Client, baseURL string) *StooqHistory {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if baseURL == "" {
		baseURL = StooqBaseURL
	}
	return &StooqHistory{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name возвращает имя провайдера.
func (h *StooqHistory) Name() string { return stooqProvider }

// FetchDaily загружает всю доступную историю символа.
// Строки с пустой, нулевой или нечисловой ценой пропускаются.
func (h *StooqHistory) FetchDaily(ctx context.Context, symbol string) (DailySeries, error) {
	endpoint := fmt.Sprintf("%s/q/d/l/?s=%s&i=d", h.baseURL, url.QueryEscape(symbol))
	body, err := fetchBody(ctx, h.client, endpoint, "text/csv")
	if err != nil {
		return DailySeries{}, upstream(stooqProvider, fmt.Errorf("%s: %w", symbol, err))
	}

	rows, closeIdx, dateIdx, err := readCSV(body)
	if err != nil {
		return DailySeries{}, upstream(stooqProvider, fmt.Errorf("%s: %w", symbol, err))
	}
	if dateIdx < 0 {
		return DailySeries{}, upstream(stooqProvider, fmt.Errorf("%s: no Date column: %w", symbol, ErrBadCSV))
	}

	closes := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		if dateIdx >= len(row) || closeIdx >= len(row) {
			continue
		}
		day, err := time.Parse(dateLayout, strings.TrimSpace(row[dateIdx]))
		if err != nil {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(row[closeIdx]))
		if err != nil || !v.IsPositive() {
			continue
		}
		closes[day.Format(dateLayout)] = v
	}
	if len(closes) == 0 {
		return DailySeries{}, upstream(stooqProvider, fmt.Errorf("%s: no usable rows: %w", symbol, ErrMissingPrice))
	}

	return DailySeries{Symbol: symbol, Closes: closes, Raw: body}, nil
}

var (
	_ Source        = (*StooqSource)(nil)
	_ HistorySource = (*StooqHistory)(nil)
)

// readCSV разбирает CSV с заголовком и возвращает строки данных,
// индекс колонки Close и индекс колонки Date (-1, если нет).
func readCSV(body []byte) ([][]string, int, int, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, -1, -1, fmt.Errorf("empty body: %w", ErrBadCSV)
		}
		return nil, -1, -1, fmt.Errorf("read header: %w", err)
	}

	closeIdx, dateIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "close":
			closeIdx = i
		case "date":
			dateIdx = i
		}
	}
	if closeIdx < 0 {
		return nil, -1, -1, fmt.Errorf("no Close column in %q: %w", strings.Join(header, ","), ErrBadCSV)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, -1, -1, fmt.Errorf("read rows: %w", err)
	}
	return rows, closeIdx, dateIdx, nil
}
