package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"hookguard/internal/engine/webhooks"
	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/audit"
	"hookguard/internal/platform/models"
)

// EventHandler lets operators emit an event to all subscribed endpoints.
type EventHandler struct {
	dispatcher *webhooks.Dispatcher
	audit      *audit.Logger
	timeout    time.Duration
}

func NewEventHandler(dispatcher *webhooks.Dispatcher, auditLogger *audit.Logger, timeout time.Duration) *EventHandler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &EventHandler{dispatcher: dispatcher, audit: auditLogger, timeout: timeout}
}

func (h *EventHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string         `json:"event_name"`
		Data       map[string]any `json:"data"`
		OccurredAt *time.Time     `json:"timestamp"`
	}
	// numbers stay as written until canonicalization; float64 would round
	// integers beyond 2^53
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Name == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "event_name is required", nil)
		return
	}

	event := &models.Event{Name: req.Name, Data: req.Data}
	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}

	// a synchronous dispatch may outlive server.write_timeout
	http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.timeout + 5*time.Second))

	// deliveries run to completion even if the caller goes away
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	deliveries, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("event", event.Name).Msg("dispatch failed")
		errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeInvalidInput, "Event could not be dispatched", nil)
		return
	}

	h.audit.Log(r.Context(), "event.dispatched", "event", event.ID, map[string]interface{}{
		"event_name": event.Name,
		"endpoints":  len(deliveries),
	})

	errors.WriteJSON(w, http.StatusAccepted, struct {
		EventID    string             `json:"event_id"`
		Deliveries []*models.Delivery `json:"deliveries"`
	}{
		EventID:    event.ID,
		Deliveries: deliveries,
	})
}
