package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/leoygitty/GSR-App/internal/cache"
	"github.com/shopspring/decimal"
)

const (
	// YahooBaseURL - адрес API котировок Yahoo Finance.
	YahooBaseURL = "https://query1.finance.yahoo.com"

	yahooProvider = "yahoo"
	yahooGold     = "GC=F"
	yahooSilver   = "SI=F"
	yahooPlatinum = "PL=F"
)

// Поля котировки в порядке предпочтения.
var yahooPriceFields = []string{
	"regularMarketPrice",
	"postMarketPrice",
	"regularMarketPreviousClose",
	"bid",
}

// YahooSource получает цены фьючерсов COMEX через Yahoo Finance.
type YahooSource struct {
	baseURL string
	client  *http.Client
	now     cache.Clock
}

// NewYahooSource создает источник Yahoo. Пустой baseURL - публичный API.
func NewYahooSource(client *http.Client, baseURL string) *YahooSource {
	if client == nil {
		client = NewHTTPClient(DefaultTimeout)
	}
	if baseURL == "" {
		baseURL = YahooBaseURL
	}
	return &YahooSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		now:     cache.SystemClock,
	}
}

// Name возвращает имя провайдера.
func (s *YahooSource) Name() string { return yahooProvider }

type yahooResponse struct {
	QuoteResponse struct {
		Result []map[string]any `json:"result"`
	} `json:"quoteResponse"`
}

// FetchSpot запрашивает золото, серебро и платину одним запросом.
func (s *YahooSource) FetchSpot(ctx context.Context) (Quote, error) {
	symbols := strings.Join([]string{yahooGold, yahooSilver, yahooPlatinum}, ",")
	endpoint := s.baseURL + "/v7/finance/quote?symbols=" + url.QueryEscape(symbols)

	body, err := fetchBody(ctx, s.client, endpoint, "application/json")
	if err != nil {
		return Quote{}, upstream(yahooProvider, err)
	}

	var parsed yahooResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return Quote{}, upstream(yahooProvider, fmt.Errorf("decode response: %w", err))
	}

	prices := make(map[string]decimal.Decimal, len(parsed.QuoteResponse.Result))
	for _, row := range parsed.QuoteResponse.Result {
		symbol, _ := row["symbol"].(string)
		if symbol == "" {
			continue
		}
		if price, ok := firstPrice(row, yahooPriceFields); ok {
			prices[symbol] = price
		}
	}

	gold, okGold := prices[yahooGold]
	silver, okSilver := prices[yahooSilver]
	if !okGold || !okSilver {
		return Quote{}, upstream(yahooProvider, fmt.Errorf("gold=%t silver=%t: %w", okGold, okSilver, ErrMissingPrice))
	}

	q := Quote{
		Gold:     gold,
		Silver:   silver,
		Provider: yahooProvider,
		Symbols: map[string]string{
			"gold":     yahooGold,
			"silver":   yahooSilver,
			"platinum": yahooPlatinum,
		},
		FetchedAt: s.now().UTC(),
	}
	if p, ok := prices[yahooPlatinum]; ok {
		q.Platinum = &p
	}

	normalizeYahoo(&q)
	if err := validateQuote(&q); err != nil {
		return Quote{}, upstream(yahooProvider, err)
	}
	return q, nil
}

// firstPrice возвращает первое присутствующее числовое поле.
func firstPrice(row map[string]any, fields []string) (decimal.Decimal, bool) {
	for _, f := range fields {
		if v, ok := toDecimal(row[f]); ok {
			return v, true
		}
	}
	return decimal.Zero, false
}

// toDecimal терпимо разбирает значение поля: число, строку или объект {"raw": ...}.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(val), ",", ""))
		return d, err == nil
	case map[string]any:
		return toDecimal(val["raw"])
	default:
		return decimal.Zero, false
	}
}

// WithClock подменяет часы источника (для тестов).
func (s *YahooSource) WithClock(clock cache.Clock) *YahooSource {
	s.now = clock
	return s
}

var _ Source = (*YahooSource)(nil)
