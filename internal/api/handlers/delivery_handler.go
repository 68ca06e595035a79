package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	apiContext "hookguard/internal/api/context"
	"hookguard/internal/engine/webhooks"
	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/audit"
	"hookguard/internal/platform/models"
	"hookguard/internal/platform/repositories"
)

type DeliveryHandler struct {
	repo       *repositories.DeliveryRepository
	dispatcher *webhooks.Dispatcher
	audit      *audit.Logger
}

func NewDeliveryHandler(repo *repositories.DeliveryRepository, dispatcher *webhooks.Dispatcher, auditLogger *audit.Logger) *DeliveryHandler {
	return &DeliveryHandler{repo: repo, dispatcher: dispatcher, audit: auditLogger}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.DeliveryPending, models.DeliverySucceeded, models.DeliveryFailed:
	default:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown delivery status", nil)
		return
	}

	deliveries, err := h.repo.List(status, queryLimit(r))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list deliveries", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, deliveries)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	dl, ok := h.load(w, r)
	if !ok {
		return
	}
	errors.WriteJSON(w, http.StatusOK, dl)
}

// Redeliver resends a stored delivery immediately, bypassing the worker schedule.
func (h *DeliveryHandler) Redeliver(w http.ResponseWriter, r *http.Request) {
	dl, ok := h.load(w, r)
	if !ok {
		return
	}

	h.dispatcher.Redeliver(context.WithoutCancel(r.Context()), dl)
	h.audit.Log(r.Context(), "delivery.redelivered", "delivery", dl.ID, map[string]interface{}{
		"status": dl.Status,
	})
	errors.WriteJSON(w, http.StatusOK, dl)
}

func (h *DeliveryHandler) load(w http.ResponseWriter, r *http.Request) (*models.Delivery, bool) {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	dl, err := h.repo.GetByID(params.ByName("delivery_id"))
	if err != nil {
		if stderrors.Is(err, repositories.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Delivery not found", nil)
			return nil, false
		}
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load delivery", nil)
		return nil, false
	}
	return dl, true
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return limit
}
