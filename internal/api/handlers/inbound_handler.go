package handlers

import (
	"net/http"

	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/repositories"
)

type InboundHandler struct {
	repo *repositories.InboundRepository
}

func NewInboundHandler(repo *repositories.InboundRepository) *InboundHandler {
	return &InboundHandler{repo: repo}
}

func (h *InboundHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.repo.List(queryLimit(r))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list inbound events", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, events)
}
