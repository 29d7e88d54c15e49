package handlers

import (
	"errors"
	"net/http"

	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/respond"
	"github.com/leoygitty/GSR-App/internal/services"
	"github.com/sirupsen/logrus"
)

// CronHandler обрабатывает служебные вызовы планировщика.
type CronHandler struct {
	latest   services.LatestService
	backfill services.BackfillService
	log      logrus.FieldLogger
}

// NewCronHandler создает обработчик служебных эндпоинтов.
func NewCronHandler(latest services.LatestService, backfill services.BackfillService, log logrus.FieldLogger) *CronHandler {
	return &CronHandler{latest: latest, backfill: backfill, log: log}
}

// RefreshResponse - ответ планового обновления.
type RefreshResponse struct {
	OK       bool                     `json:"ok"`
	Skipped  bool                     `json:"skipped,omitempty"`
	Reason   string                   `json:"reason,omitempty"`
	Snapshot *models.SnapshotResponse `json:"snapshot,omitempty"`
}

// BackfillResponse - ответ загрузки истории.
type BackfillResponse struct {
	OK      bool `json:"ok"`
	Skipped bool `json:"skipped,omitempty"`
	models.BackfillSummary
}

// Refresh обрабатывает GET /api/cron/refresh.
func (h *CronHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.latest.Refresh(r.Context(), models.MethodScheduledRefresh)
	if errors.Is(err, services.ErrRefreshInProgress) {
		h.log.Info("[CronHandler] Обновление пропущено: уже выполняется")
		respond.JSON(w, http.StatusOK, RefreshResponse{OK: true, Skipped: true, Reason: "refresh already in progress"})
		return
	}
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	resp := snap.ToResponse()
	respond.JSON(w, http.StatusOK, RefreshResponse{OK: true, Snapshot: &resp})
}

// Backfill обрабатывает GET|POST /api/cron/backfill.
func (h *CronHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	summary, err := h.backfill.Run(r.Context())
	if errors.Is(err, services.ErrBackfillInProgress) {
		h.log.Info("[CronHandler] Загрузка истории пропущена: уже выполняется")
		respond.JSON(w, http.StatusOK, BackfillResponse{OK: true, Skipped: true})
		return
	}
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, BackfillResponse{OK: true, BackfillSummary: *summary})
}
