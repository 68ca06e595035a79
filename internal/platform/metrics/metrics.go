package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hookguard"

// Metrics owns its registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	verifications    *prometheus.CounterVec
	signed           *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	redeliveries     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Webhook signature verifications by outcome and rejection reason.",
		}, []string{"outcome", "reason"}),
		signed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_signed_total",
			Help:      "Outgoing messages signed, by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Webhook deliveries by final status.",
		}, []string{"status"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time spent delivering one webhook including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		redeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redeliveries_total",
			Help:      "Deliveries picked up again by the retry worker.",
		}),
	}

	m.registry.MustRegister(
		m.verifications,
		m.signed,
		m.deliveries,
		m.deliveryDuration,
		m.redeliveries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveVerification records one verifier result. reason is empty for accepted messages.
func (m *Metrics) ObserveVerification(outcome, reason string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) ObserveSigned(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.signed.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDelivery(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status).Inc()
	m.deliveryDuration.WithLabelValues(status).Observe(took.Seconds())
}

func (m *Metrics) ObserveRedelivery() {
	if m == nil {
		return
	}
	m.redeliveries.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
