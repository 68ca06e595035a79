package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/metrics"
	"hookguard/internal/platform/models"
	"hookguard/internal/platform/repositories"
)

// Dispatcher fans a signed event out to every subscribed endpoint and
// records each delivery so the retry worker can pick up failures.
type Dispatcher struct {
	endpoints  *repositories.EndpointRepository
	deliveries *repositories.DeliveryRepository
	signer     *Signer
	deliverer  *Deliverer
	metrics    *metrics.Metrics

	workerCount     int
	redeliveryDelay time.Duration
}

func NewDispatcher(
	endpoints *repositories.EndpointRepository,
	deliveries *repositories.DeliveryRepository,
	signer *Signer,
	cfg config.WebhooksConfig,
	m *metrics.Metrics,
) *Dispatcher {
	client := &http.Client{
		Timeout: cfg.RequestTimeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Dispatcher{
		endpoints:       endpoints,
		deliveries:      deliveries,
		signer:          signer,
		deliverer:       NewDeliverer(client, HeadersFromConfig(cfg), RetryPolicyFromConfig(cfg)),
		metrics:         m,
		workerCount:     cfg.WorkerCount,
		redeliveryDelay: cfg.RedeliveryDelay,
	}
}

// EventPayload flattens an event into the signed payload. event_name and
// timestamp win over data fields of the same name.
func EventPayload(event *models.Event) Payload {
	p := make(Payload, len(event.Data)+2)
	for k, v := range event.Data {
		p[k] = v
	}
	p["event_name"] = event.Name
	p["timestamp"] = event.OccurredAt
	return p
}

// Dispatch signs event once and delivers it to all subscribed endpoints,
// at most workerCount at a time. It returns the recorded deliveries with
// their final status; individual delivery failures are not errors.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event) ([]*models.Delivery, error) {
	if event.Name == "" {
		return nil, fmt.Errorf("dispatch: event name is required")
	}
	if event.ID == "" {
		event.ID = "evt_" + uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	msg, err := d.signer.BuildMessage(EventPayload(event))
	d.metrics.ObserveSigned(err == nil)
	if err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Str("event", event.Name).Msg("failed to sign event")
		return nil, err
	}

	endpoints, err := d.endpoints.GetByEvent(event.Name)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load endpoints: %w", err)
	}

	deliveries := make([]*models.Delivery, 0, len(endpoints))
	for _, ep := range endpoints {
		dl := &models.Delivery{
			EndpointID: ep.ID,
			EventName:  event.Name,
			URL:        ep.URL,
			Body:       msg.Body,
			Signature:  msg.Signature,
		}
		if err := d.deliveries.Create(dl); err != nil {
			return deliveries, fmt.Errorf("dispatch: record delivery: %w", err)
		}
		deliveries = append(deliveries, dl)
	}

	var g errgroup.Group
	if d.workerCount > 0 {
		g.SetLimit(d.workerCount)
	}
	for _, dl := range deliveries {
		g.Go(func() error {
			d.deliver(ctx, dl, false)
			return nil
		})
	}
	g.Wait()

	log.Info().
		Str("event_id", event.ID).
		Str("event", event.Name).
		Int("endpoints", len(deliveries)).
		Msg("event dispatched")

	return deliveries, nil
}

// Redeliver resends a stored delivery once, byte for byte as signed.
func (d *Dispatcher) Redeliver(ctx context.Context, dl *models.Delivery) {
	d.metrics.ObserveRedelivery()
	d.deliver(ctx, dl, true)
}

func (d *Dispatcher) deliver(ctx context.Context, dl *models.Delivery, once bool) {
	start := time.Now()
	target := Target{URL: dl.URL, EventName: dl.EventName, DeliveryID: dl.ID}
	msg := WireMessage{Body: dl.Body, Signature: dl.Signature}

	var attempt Attempt
	if once {
		attempt = d.deliverer.DeliverOnce(ctx, target, msg)
	} else {
		attempt = d.deliverer.Deliver(ctx, target, msg)
	}

	dl.Attempts += attempt.Attempts
	dl.ResponseStatus = attempt.StatusCode

	logger := log.With().
		Str("delivery_id", dl.ID).
		Str("endpoint_id", dl.EndpointID).
		Str("event", dl.EventName).
		Int("attempts", dl.Attempts).
		Int("status_code", attempt.StatusCode).
		Logger()

	if attempt.OK() {
		dl.Status = models.DeliverySucceeded
		dl.LastError = ""
		dl.NextAttemptAt = 0
		if err := d.deliveries.MarkSucceeded(dl.ID, dl.Attempts, attempt.StatusCode); err != nil {
			logger.Error().Err(err).Msg("failed to record delivery success")
		}
		logger.Debug().Msg("webhook delivered")
	} else {
		dl.Status = models.DeliveryFailed
		dl.LastError = attempt.Err.Error()
		dl.NextAttemptAt = 0
		if !attempt.Permanent {
			dl.NextAttemptAt = time.Now().Add(d.redeliveryDelay).Unix()
		}
		if err := d.deliveries.MarkFailed(dl.ID, dl.Attempts, attempt.StatusCode, dl.LastError, dl.NextAttemptAt); err != nil {
			logger.Error().Err(err).Msg("failed to record delivery failure")
		}
		logger.Warn().Err(attempt.Err).Bool("permanent", attempt.Permanent).Msg("webhook delivery failed")
	}

	d.metrics.ObserveDelivery(dl.Status, time.Since(start))
}
