package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/database"
	"hookguard/internal/platform/models"
	"hookguard/internal/platform/repositories"
)

type recordingRedeliverer struct {
	ids []string
}

func (r *recordingRedeliverer) Redeliver(ctx context.Context, dl *models.Delivery) {
	r.ids = append(r.ids, dl.ID)
}

type failingSource struct{}

func (failingSource) GetRetryable(int64, int64, int, int) ([]*models.Delivery, error) {
	return nil, errors.New("database is locked")
}

func TestRetryFailedDeliveries(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(db, "up"))

	endpoints := repositories.NewEndpointRepository(db)
	deliveries := repositories.NewDeliveryRepository(db)

	ep := &models.Endpoint{URL: "https://example.com/hook", Events: []string{"*"}}
	require.NoError(t, endpoints.Create(ep))

	past := time.Now().Add(-time.Minute).Unix()
	future := time.Now().Add(time.Hour).Unix()

	newDelivery := func() *models.Delivery {
		dl := &models.Delivery{EndpointID: ep.ID, EventName: "patient_updated", URL: ep.URL, Body: []byte("{}"), Signature: "sig"}
		require.NoError(t, deliveries.Create(dl))
		return dl
	}

	due := newDelivery()
	require.NoError(t, deliveries.MarkFailed(due.ID, 3, 503, "HTTP 503", past))

	notYet := newDelivery()
	require.NoError(t, deliveries.MarkFailed(notYet.ID, 3, 503, "HTTP 503", future))

	permanent := newDelivery()
	require.NoError(t, deliveries.MarkFailed(permanent.ID, 1, 400, "HTTP 400", 0))

	exhausted := newDelivery()
	require.NoError(t, deliveries.MarkFailed(exhausted.ID, 13, 503, "HTTP 503", past))

	ok := newDelivery()
	require.NoError(t, deliveries.MarkSucceeded(ok.ID, 1, 200))

	inFlight := newDelivery()

	orphaned := newDelivery()
	_, err = db.Exec(`UPDATE deliveries SET updated_at = ? WHERE id = ?`, time.Now().Add(-time.Hour).Unix(), orphaned.ID)
	require.NoError(t, err)

	rec := &recordingRedeliverer{}
	cfg := config.WebhooksConfig{RetryAttempts: 3, MaxRedeliveries: 10, StalePendingAfter: 15 * time.Minute}
	sent, err := RetryFailedDeliveries(context.Background(), deliveries, rec, cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, sent)
	assert.ElementsMatch(t, []string{due.ID, orphaned.ID}, rec.ids)
	assert.NotContains(t, rec.ids, inFlight.ID)
}

func TestRetryFailedDeliveries_SourceError(t *testing.T) {
	rec := &recordingRedeliverer{}
	_, err := RetryFailedDeliveries(context.Background(), failingSource{}, rec, config.WebhooksConfig{RetryAttempts: 1})
	assert.Error(t, err)
	assert.Empty(t, rec.ids)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, failingSource{}, &recordingRedeliverer{}, config.WebhooksConfig{RetryInterval: time.Millisecond})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
