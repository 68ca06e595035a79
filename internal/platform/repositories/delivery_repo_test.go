package repositories

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/database"
	"hookguard/internal/platform/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, "up"))
	t.Cleanup(func() { db.Close() })
	return db
}

func createEndpoint(t *testing.T, db *sql.DB) *models.Endpoint {
	t.Helper()
	ep := &models.Endpoint{URL: "https://example.com/hook", Events: []string{"patient_updated"}}
	require.NoError(t, NewEndpointRepository(db).Create(ep))
	return ep
}

func TestDeliveryRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ep := createEndpoint(t, db)
	repo := NewDeliveryRepository(db)

	d := &models.Delivery{
		EndpointID: ep.ID,
		EventName:  "patient_updated",
		URL:        ep.URL,
		Body:       []byte(`{"a":1}`),
		Signature:  "ab",
	}
	require.NoError(t, repo.Create(d))
	assert.Equal(t, models.DeliveryPending, d.Status)

	due := time.Now().Add(-time.Minute).Unix()
	require.NoError(t, repo.MarkFailed(d.ID, 3, 503, "HTTP 503", due))

	retryable, err := repo.GetRetryable(time.Now().Unix(), 0, 10, 50)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, []byte(`{"a":1}`), retryable[0].Body)
	assert.Equal(t, 503, retryable[0].ResponseStatus)
	assert.Equal(t, "HTTP 503", retryable[0].LastError)

	// attempts exhausted
	retryable, err = repo.GetRetryable(time.Now().Unix(), 0, 3, 50)
	require.NoError(t, err)
	assert.Empty(t, retryable)

	require.NoError(t, repo.MarkSucceeded(d.ID, 4, 200))
	got, err := repo.GetByID(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySucceeded, got.Status)
	assert.Equal(t, 4, got.Attempts)
	assert.Empty(t, got.LastError)
	assert.NotZero(t, got.DeliveredAt)

	list, err := repo.List(models.DeliverySucceeded, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeliveryRepository_PermanentFailureNotRetried(t *testing.T) {
	db := setupTestDB(t)
	ep := createEndpoint(t, db)
	repo := NewDeliveryRepository(db)

	d := &models.Delivery{EndpointID: ep.ID, EventName: "x", URL: ep.URL, Body: []byte("{}"), Signature: "ab"}
	require.NoError(t, repo.Create(d))
	require.NoError(t, repo.MarkFailed(d.ID, 1, 400, "HTTP 400", 0))

	retryable, err := repo.GetRetryable(time.Now().Unix(), 0, 10, 50)
	require.NoError(t, err)
	assert.Empty(t, retryable)
}

func TestDeliveryRepository_StalePendingRetried(t *testing.T) {
	db := setupTestDB(t)
	ep := createEndpoint(t, db)
	repo := NewDeliveryRepository(db)

	stale := &models.Delivery{EndpointID: ep.ID, EventName: "x", URL: ep.URL, Body: []byte("{}"), Signature: "ab"}
	require.NoError(t, repo.Create(stale))
	fresh := &models.Delivery{EndpointID: ep.ID, EventName: "x", URL: ep.URL, Body: []byte("{}"), Signature: "ab"}
	require.NoError(t, repo.Create(fresh))

	old := time.Now().Add(-time.Hour).Unix()
	_, err := db.Exec(`UPDATE deliveries SET updated_at = ? WHERE id = ?`, old, stale.ID)
	require.NoError(t, err)

	now := time.Now()
	retryable, err := repo.GetRetryable(now.Unix(), now.Add(-15*time.Minute).Unix(), 10, 50)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, stale.ID, retryable[0].ID)
	assert.Equal(t, models.DeliveryPending, retryable[0].Status)
}

func TestInboundRepository_Duplicate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewInboundRepository(db)

	first := &models.InboundEvent{DeliveryID: "dlv_1", EventName: "patient_updated", Body: []byte(`{}`)}
	require.NoError(t, repo.Create(first))

	second := &models.InboundEvent{DeliveryID: "dlv_1", EventName: "patient_updated", Body: []byte(`{}`)}
	assert.ErrorIs(t, repo.Create(second), ErrDuplicate)

	// events without a delivery ID never collide
	require.NoError(t, repo.Create(&models.InboundEvent{Body: []byte(`{}`)}))
	require.NoError(t, repo.Create(&models.InboundEvent{Body: []byte(`{}`)}))

	events, err := repo.List(10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
