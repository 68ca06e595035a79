package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hookguard/internal/platform/secrets"
)

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestDeliverer_SendsSignedBodyUnmodified(t *testing.T) {
	verifier := NewVerifier(secrets.FromString(goldenSecret))

	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.Store(verifier.Verify(body, r.Header.Get("X-Signature")))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "patient_updated", r.Header.Get("X-Webhook-Event"))
		assert.Equal(t, "dlv_1", r.Header.Get("X-Webhook-Delivery"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.Client(), HeadersFromConfig(zeroWebhooksConfig()), testPolicy(3))
	attempt := d.Deliver(context.Background(),
		Target{URL: srv.URL, EventName: "patient_updated", DeliveryID: "dlv_1"},
		WireMessage{Body: []byte(goldenBody), Signature: goldenSignature})

	require.True(t, attempt.OK(), "delivery failed: %v", attempt.Err)
	assert.Equal(t, 1, attempt.Attempts)
	assert.Equal(t, http.StatusOK, attempt.StatusCode)
	assert.True(t, got.Load().(Result).Accepted())
}

func TestDeliverer_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.Client(), HeadersFromConfig(zeroWebhooksConfig()), testPolicy(5))
	attempt := d.Deliver(context.Background(), Target{URL: srv.URL}, WireMessage{Body: []byte("{}"), Signature: goldenSignature})

	require.True(t, attempt.OK())
	assert.Equal(t, 3, attempt.Attempts)
	assert.Equal(t, http.StatusAccepted, attempt.StatusCode)
}

func TestDeliverer_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.Client(), HeadersFromConfig(zeroWebhooksConfig()), testPolicy(3))
	attempt := d.Deliver(context.Background(), Target{URL: srv.URL}, WireMessage{Body: []byte("{}"), Signature: goldenSignature})

	assert.False(t, attempt.OK())
	assert.False(t, attempt.Permanent)
	assert.Equal(t, 3, attempt.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, http.StatusBadGateway, attempt.StatusCode)
}

func TestDeliverer_ClientErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.Client(), HeadersFromConfig(zeroWebhooksConfig()), testPolicy(5))
	attempt := d.Deliver(context.Background(), Target{URL: srv.URL}, WireMessage{Body: []byte("{}"), Signature: goldenSignature})

	assert.False(t, attempt.OK())
	assert.True(t, attempt.Permanent)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliverer_CustomSignatureHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Hub-Signature") != goldenSignature {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := zeroWebhooksConfig()
	cfg.SignatureHeader = "X-Hub-Signature"
	d := NewDeliverer(srv.Client(), HeadersFromConfig(cfg), testPolicy(1))
	attempt := d.DeliverOnce(context.Background(), Target{URL: srv.URL}, WireMessage{Body: []byte("{}"), Signature: goldenSignature})

	assert.True(t, attempt.OK())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(0, assert.AnError))
	assert.True(t, retryable(http.StatusTooManyRequests, assert.AnError))
	assert.True(t, retryable(http.StatusRequestTimeout, assert.AnError))
	assert.True(t, retryable(http.StatusInternalServerError, assert.AnError))
	assert.False(t, retryable(http.StatusBadRequest, assert.AnError))
	assert.False(t, retryable(http.StatusFound, assert.AnError))
	assert.False(t, retryable(0, errInvalidTarget{assert.AnError}))
}
