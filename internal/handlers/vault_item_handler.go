package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/middleware"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/respond"
	"github.com/leoygitty/GSR-App/internal/services"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Действия совместимого формата POST /api/vault/items {action: ...}.
const (
	actionCreate  = "create"
	actionUpdate  = "update"
	actionDelete  = "delete"
	actionReorder = "reorder"
)

// VaultItemHandler обрабатывает запросы к предметам хранилища пользователя.
type VaultItemHandler struct {
	service services.VaultItemService
	log     logrus.FieldLogger
}

// NewVaultItemHandler создает обработчик предметов хранилища.
func NewVaultItemHandler(s services.VaultItemService, log logrus.FieldLogger) *VaultItemHandler {
	return &VaultItemHandler{service: s, log: log}
}

// OKResponse - ответ без данных.
type OKResponse struct {
	OK bool `json:"ok"`
}

// List обрабатывает GET /api/vault/items?section=&type=&limit=.
func (h *VaultItemHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	items, meta, err := h.service.List(r.Context(), userID, services.VaultListQuery{
		Section: q.Get("section"),
		Type:    q.Get("type"),
		Limit:   queryInt(q.Get("limit"), services.DefaultListLimit),
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, models.VaultListResponse{OK: true, Items: items, Meta: meta})
}

// Create обрабатывает POST /api/vault/items. Тело с полем action
// разбирается в совместимом формате (create/update/delete/reorder).
func (h *VaultItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var envelope struct {
		Action string        `json:"action"`
		ID     models.FlexID `json:"id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		respond.Error(w, h.log, apperr.Validation("Invalid JSON body"))
		return
	}

	switch action := strings.ToLower(strings.TrimSpace(envelope.Action)); action {
	case "", actionCreate:
		h.create(w, r, userID, body)
	case actionUpdate:
		h.update(w, r, userID, int64(envelope.ID), body)
	case actionDelete:
		h.deleteItem(w, r, userID, int64(envelope.ID))
	case actionReorder:
		h.reorder(w, r, userID, body)
	default:
		respond.Error(w, h.log, apperr.Validation("Invalid action"))
	}
}

// Update обрабатывает PATCH /api/vault/items/{id}.
func (h *VaultItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.update(w, r, userID, id, body)
}

// Delete обрабатывает DELETE /api/vault/items/{id}.
func (h *VaultItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	h.deleteItem(w, r, userID, id)
}

// Reorder обрабатывает POST /api/vault/items/reorder.
func (h *VaultItemHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.reorder(w, r, userID, body)
}

func (h *VaultItemHandler) create(w http.ResponseWriter, r *http.Request, userID string, body []byte) {
	var req models.CreateVaultItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respond.Error(w, h.log, apperr.Validation("Invalid JSON body: "+err.Error()))
		return
	}
	item, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, models.VaultItemResponse{OK: true, Item: *item})
}

func (h *VaultItemHandler) update(w http.ResponseWriter, r *http.Request, userID string, id int64, body []byte) {
	var req models.UpdateVaultItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respond.Error(w, h.log, apperr.Validation("Invalid JSON body: "+err.Error()))
		return
	}
	item, err := h.service.Update(r.Context(), userID, id, req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, models.VaultItemResponse{OK: true, Item: *item})
}

func (h *VaultItemHandler) deleteItem(w http.ResponseWriter, r *http.Request, userID string, id int64) {
	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, OKResponse{OK: true})
}

func (h *VaultItemHandler) reorder(w http.ResponseWriter, r *http.Request, userID string, body []byte) {
	var req models.ReorderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respond.Error(w, h.log, apperr.Validation("moves[] required"))
		return
	}
	updated, err := h.service.Reorder(r.Context(), userID, req)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, models.ReorderResponse{OK: true, Updated: updated})
}

// userID достает id пользователя, положенный Authenticator.
func (h *VaultItemHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.log.Error("[VaultHandler] Не удалось получить userID из контекста")
		respond.Error(w, h.log, apperr.Auth("Unauthorized", nil))
		return "", false
	}
	return userID, true
}

func (h *VaultItemHandler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.Error(w, h.log, apperr.Validation("Invalid id"))
		return 0, false
	}
	return id, true
}

func (h *VaultItemHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respond.Error(w, h.log, apperr.Validation("Request body too large or unreadable"))
		return nil, false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	return body, true
}
