package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/pricing"
	"github.com/leoygitty/GSR-App/internal/respond"
	"github.com/leoygitty/GSR-App/internal/services"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PriceHandler обрабатывает публичные запросы цен.
type PriceHandler struct {
	latest services.LatestService
	spot   pricing.Source
	log    logrus.FieldLogger
}

// NewPriceHandler создает обработчик цен.
func NewPriceHandler(latest services.LatestService, spot pricing.Source, log logrus.FieldLogger) *PriceHandler {
	return &PriceHandler{latest: latest, spot: spot, log: log}
}

// Latest обрабатывает GET /api/latest?limit=&force=&stale_after=.
func (h *PriceHandler) Latest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := services.LatestOptions{
		HistoryLimit:      queryInt(q.Get("limit"), services.DefaultHistoryLimit),
		Force:             queryBool(q.Get("force")),
		StaleAfterMinutes: queryInt(q.Get("stale_after"), services.DefaultStaleAfter),
	}

	res, err := h.latest.Latest(r.Context(), opts)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	history := make([]models.HistoryPoint, 0, len(res.History))
	for _, s := range res.History {
		history = append(history, s.ToHistoryPoint())
	}
	respond.JSON(w, http.StatusOK, models.LatestResponse{
		OK:          true,
		Latest:      res.Latest.ToResponse(),
		History:     history,
		Diagnostics: res.Diagnostics,
	})
}

// SpotResponse - тело ответа GET /api/spot.
type SpotResponse struct {
	OK        bool              `json:"ok"`
	Date      string            `json:"date"`
	Gold      decimal.Decimal   `json:"gold_usd"`
	Silver    decimal.Decimal   `json:"silver_usd"`
	Platinum  *decimal.Decimal  `json:"platinum_usd"`
	Ratio     decimal.Decimal   `json:"gsr"`
	Provider  string            `json:"provider"`
	Symbols   map[string]string `json:"symbols,omitempty"`
	Notes     []string          `json:"notes,omitempty"`
	FetchedAt string            `json:"fetched_at_utc"`
}

// Spot обрабатывает GET /api/spot: котировка из источника без записи в БД.
func (h *PriceHandler) Spot(w http.ResponseWriter, r *http.Request) {
	quote, err := h.spot.FetchSpot(r.Context())
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	ratio, err := models.ComputeRatio(quote.Gold, quote.Silver)
	if err != nil {
		respond.Message(w, http.StatusBadGateway, "Invalid silver price", "")
		return
	}
	respond.JSON(w, http.StatusOK, SpotResponse{
		OK:        true,
		Date:      quote.FetchedAt.UTC().Format(models.DateLayout),
		Gold:      quote.Gold,
		Silver:    quote.Silver,
		Platinum:  quote.Platinum,
		Ratio:     ratio.Round(4),
		Provider:  quote.Provider,
		Symbols:   quote.Symbols,
		Notes:     quote.Notes,
		FetchedAt: quote.FetchedAt.UTC().Format(time.RFC3339),
	})
}

// queryInt разбирает целое из query; пустое или некорректное значение - def.
func queryInt(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func queryBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
