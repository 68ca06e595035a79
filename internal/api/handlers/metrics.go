package handlers

import (
	"net/http"

	"hookguard/internal/platform/metrics"
)

type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{handler: m.Handler()}
}

func (h *MetricsHandler) Export(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}
