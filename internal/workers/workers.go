package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/models"
)

// Redeliverer resends one stored delivery and records the outcome.
type Redeliverer interface {
	Redeliver(ctx context.Context, dl *models.Delivery)
}

// RetryableSource lists failed deliveries that are due again.
type RetryableSource interface {
	GetRetryable(now, staleBefore int64, maxAttempts, limit int) ([]*models.Delivery, error)
}

const (
	retryBatchSize           = 100
	defaultStalePendingAfter = 15 * time.Minute
)

// RetryFailedDeliveries redelivers every failed delivery whose
// next_attempt_at has passed, and every pending one older than
// stale_pending_after, while attempts are still below the in-process
// retries plus max_redeliveries. It returns how many were sent.
func RetryFailedDeliveries(ctx context.Context, src RetryableSource, r Redeliverer, cfg config.WebhooksConfig) (int, error) {
	maxAttempts := cfg.RetryAttempts + cfg.MaxRedeliveries
	if maxAttempts <= 0 {
		return 0, nil
	}

	stalePendingAfter := cfg.StalePendingAfter
	if stalePendingAfter <= 0 {
		stalePendingAfter = defaultStalePendingAfter
	}

	now := time.Now()
	due, err := src.GetRetryable(now.Unix(), now.Add(-stalePendingAfter).Unix(), maxAttempts, retryBatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, dl := range due {
		if ctx.Err() != nil {
			break
		}
		r.Redeliver(ctx, dl)
		sent++
	}

	if sent > 0 {
		log.Info().Int("redelivered", sent).Msg("worker: retried failed deliveries")
	}
	return sent, ctx.Err()
}

// Run calls RetryFailedDeliveries every cfg.RetryInterval until ctx is done.
func Run(ctx context.Context, src RetryableSource, r Redeliverer, cfg config.WebhooksConfig) {
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := RetryFailedDeliveries(ctx, src, r, cfg); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("worker: retry pass failed")
			}
		}
	}
}
