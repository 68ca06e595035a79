package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"
	apiContext "hookguard/internal/api/context"
	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/models"
	"hookguard/internal/platform/repositories"
)

// ReceiverHandler stores webhooks that already passed signature
// verification. It must sit behind SignatureMiddleware.
type ReceiverHandler struct {
	inbound        *repositories.InboundRepository
	deliveryHeader string
}

func NewReceiverHandler(inbound *repositories.InboundRepository, deliveryHeader string) *ReceiverHandler {
	if deliveryHeader == "" {
		deliveryHeader = "X-Webhook-Delivery"
	}
	return &ReceiverHandler{inbound: inbound, deliveryHeader: deliveryHeader}
}

func (h *ReceiverHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, ok := r.Context().Value(apiContext.Body).([]byte)
	if !ok {
		// routed without verification; refuse rather than trust r.Body
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeInvalidSignature, "Invalid webhook signature", nil)
		return
	}

	// parsed only after the signature matched
	var envelope struct {
		EventName string `json:"event_name"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Body is not a JSON object", nil)
		return
	}

	event := &models.InboundEvent{
		DeliveryID: r.Header.Get(h.deliveryHeader),
		EventName:  envelope.EventName,
		Body:       json.RawMessage(body),
		RemoteAddr: r.RemoteAddr,
	}

	err := h.inbound.Create(event)
	if stderrors.Is(err, repositories.ErrDuplicate) {
		log.Info().Str("delivery_id", event.DeliveryID).Msg("duplicate webhook acknowledged")
		errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("delivery_id", event.DeliveryID).Msg("failed to store webhook")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to store webhook", nil)
		return
	}

	log.Info().
		Str("inbound_id", event.ID).
		Str("delivery_id", event.DeliveryID).
		Str("event", event.EventName).
		Msg("webhook accepted")

	errors.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted", "id": event.ID})
}
