package webhooks

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/database"
	"hookguard/internal/platform/metrics"
	"hookguard/internal/platform/models"
	"hookguard/internal/platform/repositories"
	"hookguard/internal/platform/secrets"
)

func zeroWebhooksConfig() config.WebhooksConfig {
	return config.WebhooksConfig{}
}

func setupDispatcher(t *testing.T) (*Dispatcher, *sql.DB) {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, "up"))
	t.Cleanup(func() { db.Close() })

	signer, err := NewSigner(secrets.FromString(goldenSecret))
	require.NoError(t, err)

	cfg := config.WebhooksConfig{
		WorkerCount:          4,
		RequestTimeout:       2 * time.Second,
		RetryAttempts:        2,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
		RedeliveryDelay:      time.Minute,
	}
	d := NewDispatcher(
		repositories.NewEndpointRepository(db),
		repositories.NewDeliveryRepository(db),
		signer, cfg, metrics.New(),
	)
	return d, db
}

type recorder struct {
	mu     sync.Mutex
	bodies []string
	sigs   []string
	status int
}

func (rec *recorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.bodies = append(rec.bodies, string(body))
		rec.sigs = append(rec.sigs, r.Header.Get("X-Signature"))
		status := rec.status
		rec.mu.Unlock()
		w.WriteHeader(status)
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	d, db := setupDispatcher(t)
	endpoints := repositories.NewEndpointRepository(db)

	ok := &recorder{status: http.StatusOK}
	okSrv := httptest.NewServer(ok.handler())
	defer okSrv.Close()

	down := &recorder{status: http.StatusServiceUnavailable}
	downSrv := httptest.NewServer(down.handler())
	defer downSrv.Close()

	other := &recorder{status: http.StatusOK}
	otherSrv := httptest.NewServer(other.handler())
	defer otherSrv.Close()

	require.NoError(t, endpoints.Create(&models.Endpoint{URL: okSrv.URL, Events: []string{"patient_updated"}}))
	require.NoError(t, endpoints.Create(&models.Endpoint{URL: downSrv.URL, Events: []string{"*"}}))
	require.NoError(t, endpoints.Create(&models.Endpoint{URL: otherSrv.URL, Events: []string{"patient_deleted"}}))

	event := &models.Event{
		Name:       "patient_updated",
		Data:       map[string]any{"patient_id": "123456", "updated_fields": []string{"diagnosis", "treatment"}},
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	deliveries, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)

	byURL := map[string]*models.Delivery{}
	for _, dl := range deliveries {
		byURL[dl.URL] = dl
	}

	assert.Equal(t, models.DeliverySucceeded, byURL[okSrv.URL].Status)
	assert.Equal(t, models.DeliveryFailed, byURL[downSrv.URL].Status)
	assert.Equal(t, 2, byURL[downSrv.URL].Attempts)
	assert.NotZero(t, byURL[downSrv.URL].NextAttemptAt)

	require.Len(t, ok.bodies, 1)
	assert.Equal(t, goldenBody, ok.bodies[0])
	assert.Equal(t, goldenSignature, ok.sigs[0])
	assert.Empty(t, other.bodies)

	stored, err := repositories.NewDeliveryRepository(db).GetByID(byURL[downSrv.URL].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, stored.Status)
	assert.Equal(t, []byte(goldenBody), stored.Body)
}

func TestDispatcher_Redeliver(t *testing.T) {
	d, db := setupDispatcher(t)
	endpoints := repositories.NewEndpointRepository(db)
	deliveries := repositories.NewDeliveryRepository(db)

	rec := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	require.NoError(t, endpoints.Create(&models.Endpoint{URL: srv.URL, Events: []string{"patient_updated"}}))
	sent, err := d.Dispatch(context.Background(), &models.Event{Name: "patient_updated"})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, models.DeliveryFailed, sent[0].Status)

	rec.mu.Lock()
	rec.status = http.StatusOK
	rec.mu.Unlock()

	stored, err := deliveries.GetByID(sent[0].ID)
	require.NoError(t, err)
	d.Redeliver(context.Background(), stored)

	after, err := deliveries.GetByID(sent[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySucceeded, after.Status)
	assert.Equal(t, 3, after.Attempts)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.bodies, 3)
	assert.Equal(t, rec.bodies[0], rec.bodies[2], "redelivery must resend the stored bytes")
	assert.Equal(t, rec.sigs[0], rec.sigs[2])
}

func TestDispatcher_RequiresEventName(t *testing.T) {
	d, _ := setupDispatcher(t)
	_, err := d.Dispatch(context.Background(), &models.Event{})
	assert.Error(t, err)
}

func TestEventPayload_ReservedFieldsWin(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := EventPayload(&models.Event{
		Name:       "patient_updated",
		Data:       map[string]any{"event_name": "spoofed", "patient_id": "1"},
		OccurredAt: at,
	})
	assert.Equal(t, "patient_updated", p["event_name"])
	assert.Equal(t, at, p["timestamp"])
	assert.Equal(t, "1", p["patient_id"])
}
