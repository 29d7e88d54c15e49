package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Способы получения снапшота (Provenance.Method).
const (
	MethodSelfHeal         = "self_heal"
	MethodScheduledRefresh = "scheduled_refresh"
	MethodManualBackfill   = "manual_backfill"
)

// DateLayout - формат календарной даты в API.
const DateLayout = "2006-01-02"

// Ошибки построения снапшота.
var (
	ErrNonPositivePrice = errors.New("price must be strictly positive")
)

// Provenance описывает, откуда и как получены цены снапшота.
// Хранится в колонке source (jsonb).
type Provenance struct {
	Provider    string            `json:"provider,omitempty"`
	Method      string            `json:"method,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	Symbols     map[string]string `json:"symbols,omitempty"`
	Notes       []string          `json:"notes,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	ArchiveKeys []string          `json:"archive_keys,omitempty"`
}

// Value сериализует Provenance в JSON для jsonb-колонки.
func (p Provenance) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации provenance: %w", err)
	}
	return string(b), nil
}

// Scan читает Provenance из jsonb. Старые строки могли хранить простую строку-тег
// (например "cron_hourly_yahoo") - она попадает в Method.
func (p *Provenance) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Provenance{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("неподдерживаемый тип provenance: %T", src)
	}

	var out Provenance
	if err := json.Unmarshal(raw, &out); err == nil {
		*p = out
		return nil
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		*p = Provenance{Method: tag}
		return nil
	}
	*p = Provenance{Method: string(raw)}
	return nil
}

// PriceSnapshot - дневной снапшот цен (одна строка на дату UTC).
type PriceSnapshot struct {
	Date      time.Time       `db:"d"`
	GoldUSD   decimal.Decimal `db:"gold_usd"`
	SilverUSD decimal.Decimal `db:"silver_usd"`
	Ratio     decimal.Decimal `db:"gsr"`
	FetchedAt time.Time       `db:"fetched_at_utc"`
	Source    Provenance      `db:"source"`
}

// ComputeRatio считает соотношение золото/серебро. Серебро должно быть > 0.
func ComputeRatio(gold, silver decimal.Decimal) (decimal.Decimal, error) {
	if !silver.IsPositive() {
		return decimal.Zero, fmt.Errorf("silver %s: %w", silver, ErrNonPositivePrice)
	}
	return gold.Div(silver), nil
}

// NewPriceSnapshot собирает снапшот, проверяя цены и вычисляя ratio.
// Дата приводится к полуночи UTC.
func NewPriceSnapshot(
	date time.Time,
	gold, silver decimal.Decimal,
	fetchedAt time.Time,
	source Provenance,
) (PriceSnapshot, error) {
	if !gold.IsPositive() {
		return PriceSnapshot{}, fmt.Errorf("gold %s: %w", gold, ErrNonPositivePrice)
	}
	ratio, err := ComputeRatio(gold, silver)
	if err != nil {
		return PriceSnapshot{}, err
	}
	return PriceSnapshot{
		Date:      TruncateToDate(date),
		GoldUSD:   gold,
		SilverUSD: silver,
		Ratio:     ratio,
		FetchedAt: fetchedAt.UTC(),
		Source:    source,
	}, nil
}

// TruncateToDate возвращает полночь UTC для момента t.
func TruncateToDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// SnapshotResponse - представление последнего снапшота в ответе /api/latest.
type SnapshotResponse struct {
	Date      string          `json:"date"`
	GoldUSD   decimal.Decimal `json:"gold_usd"`
	SilverUSD decimal.Decimal `json:"silver_usd"`
	Ratio     decimal.Decimal `json:"gsr"`
	FetchedAt string          `json:"fetched_at_utc"`
	Source    Provenance      `json:"source"`
}

// HistoryPoint - точка истории для графиков.
type HistoryPoint struct {
	Date      string          `json:"date"`
	GoldUSD   decimal.Decimal `json:"gold_usd"`
	SilverUSD decimal.Decimal `json:"silver_usd"`
	Ratio     decimal.Decimal `json:"gsr"`
}

// ToResponse конвертирует снапшот в ответ API.
func (s PriceSnapshot) ToResponse() SnapshotResponse {
	return SnapshotResponse{
		Date:      s.Date.UTC().Format(DateLayout),
		GoldUSD:   s.GoldUSD,
		SilverUSD: s.SilverUSD,
		Ratio:     s.Ratio,
		FetchedAt: s.FetchedAt.UTC().Format(time.RFC3339),
		Source:    s.Source,
	}
}

// ToHistoryPoint конвертирует снапшот в точку истории.
func (s PriceSnapshot) ToHistoryPoint() HistoryPoint {
	return HistoryPoint{
		Date:      s.Date.UTC().Format(DateLayout),
		GoldUSD:   s.GoldUSD,
		SilverUSD: s.SilverUSD,
		Ratio:     s.Ratio,
	}
}

// LatestDiagnostics - обязательная часть ответа /api/latest:
// что происходило с самовосстановлением в рамках запроса.
type LatestDiagnostics struct {
	Today             string `json:"today_utc"`
	Stale             bool   `json:"stale"`
	Force             bool   `json:"force"`
	StaleAfterMinutes int    `json:"stale_after_minutes"`
	LockAcquired      bool   `json:"lock_acquired"`
	RefreshAttempted  bool   `json:"refresh_attempted"`
	Refreshed         bool   `json:"refreshed"`
	FellBack          bool   `json:"fell_back"`
	Error             string `json:"error,omitempty"`
}

// LatestResult - результат операции latest.
type LatestResult struct {
	Latest      PriceSnapshot
	History     []PriceSnapshot
	Diagnostics LatestDiagnostics
}

// LatestResponse - тело ответа /api/latest.
type LatestResponse struct {
	OK          bool              `json:"ok"`
	Latest      SnapshotResponse  `json:"latest"`
	History     []HistoryPoint    `json:"history"`
	Diagnostics LatestDiagnostics `json:"diagnostics"`
}

// BackfillSummary - итог загрузки исторических данных.
type BackfillSummary struct {
	RowsUpserted int      `json:"rows_upserted"`
	Start        string   `json:"start"`
	End          string   `json:"end"`
	Series       []string `json:"series"`
	ArchiveKeys  []string `json:"archive_keys,omitempty"`
}
