// Package pricing содержит клиентов внешних источников котировок драгметаллов.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/shopspring/decimal"
)

const (
	// DefaultTimeout - таймаут одного HTTP-запроса к источнику.
	DefaultTimeout = 12 * time.Second
	// UserAgent - идентифицирующий заголовок для источников.
	UserAgent = "MetalMetric/1.0 (+price-tracker)"

	maxBodyBytes = 8 << 20
)

// Ошибки разбора ответа источника.
var (
	ErrMissingPrice     = errors.New("price is missing in provider response")
	ErrNonPositivePrice = errors.New("provider returned non-positive price")
)

// Quote - спотовые цены в USD за тройскую унцию.
type Quote struct {
	Gold      decimal.Decimal
	Silver    decimal.Decimal
	Platinum  *decimal.Decimal
	Provider  string
	Symbols   map[string]string
	Notes     []string
	FetchedAt time.Time
}

// Source - источник спотовых котировок.
type Source interface {
	Name() string
	FetchSpot(ctx context.Context) (Quote, error)
}

// NewHTTPClient создает HTTP-клиент с ограниченным таймаутом.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// validateQuote проверяет, что золото и серебро есть и строго положительны.
// Неположительная платина отбрасывается с пометкой в Notes.
func validateQuote(q *Quote) error {
	if q.Gold.IsZero() && q.Silver.IsZero() {
		return ErrMissingPrice
	}
	if !q.Gold.IsPositive() {
		return fmt.Errorf("gold %s: %w", q.Gold, ErrNonPositivePrice)
	}
	if !q.Silver.IsPositive() {
		return fmt.Errorf("silver %s: %w", q.Silver, ErrNonPositivePrice)
	}
	if q.Platinum != nil && !q.Platinum.IsPositive() {
		q.Notes = append(q.Notes, "platinum dropped: non-positive value "+q.Platinum.String())
		q.Platinum = nil
	}
	return nil
}

// fetchBody выполняет GET и возвращает тело ответа. Любая сетевая ошибка,
// неуспешный статус или слишком большое тело - ошибка источника.
func fetchBody(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

// upstream оборачивает ошибку провайдера в класс UpstreamError.
func upstream(provider string, err error) error {
	if apperr.KindOf(err) == apperr.KindUpstream {
		return err
	}
	return apperr.Upstream(provider+" price source failed", err)
}
