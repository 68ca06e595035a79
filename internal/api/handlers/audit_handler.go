package handlers

import (
	"net/http"

	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/audit"
)

type AuditHandler struct {
	logger *audit.Logger
}

func NewAuditHandler(logger *audit.Logger) *AuditHandler {
	return &AuditHandler{logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	logs, err := h.logger.List(queryLimit(r))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to list audit logs", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, logs)
}
