package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"hookguard/internal/platform/config"
)

// Headers names the HTTP headers a WireMessage travels with. Receivers of
// an existing deployment depend on the exact signature header name.
type Headers struct {
	Signature string
	Event     string
	Delivery  string
}

func HeadersFromConfig(cfg config.WebhooksConfig) Headers {
	h := Headers{
		Signature: cfg.SignatureHeader,
		Event:     cfg.EventHeader,
		Delivery:  cfg.DeliveryHeader,
	}
	if h.Signature == "" {
		h.Signature = "X-Signature"
	}
	if h.Event == "" {
		h.Event = "X-Webhook-Event"
	}
	if h.Delivery == "" {
		h.Delivery = "X-Webhook-Delivery"
	}
	return h
}

// RetryPolicy is the delivery component's explicit retry/backoff policy.
// Signing never retries; only transport does.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func RetryPolicyFromConfig(cfg config.WebhooksConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.RetryAttempts,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

func (p RetryPolicy) tries() uint {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return uint(p.MaxAttempts)
}

// Target is one receiver of a message.
type Target struct {
	URL        string
	EventName  string
	DeliveryID string
}

// Attempt summarizes a delivery after the retry policy has run out.
type Attempt struct {
	Attempts   int
	StatusCode int
	Err        error
	// Permanent is set when retrying cannot help, e.g. a 4xx response.
	Permanent bool
}

func (a Attempt) OK() bool { return a.Err == nil }

// Deliverer POSTs wire messages and applies the retry policy.
type Deliverer struct {
	client  *http.Client
	headers Headers
	policy  RetryPolicy
}

func NewDeliverer(client *http.Client, headers Headers, policy RetryPolicy) *Deliverer {
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			// a redirected POST turns into a GET without the signed body
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Deliverer{client: client, headers: headers, policy: policy}
}

// Deliver sends msg to target, retrying transient failures with
// exponential backoff. The body is sent exactly as signed.
func (d *Deliverer) Deliver(ctx context.Context, target Target, msg WireMessage) Attempt {
	return d.deliver(ctx, target, msg, d.policy.tries())
}

// DeliverOnce makes a single attempt, for callers that schedule their own retries.
func (d *Deliverer) DeliverOnce(ctx context.Context, target Target, msg WireMessage) Attempt {
	return d.deliver(ctx, target, msg, 1)
}

func (d *Deliverer) deliver(ctx context.Context, target Target, msg WireMessage, tries uint) Attempt {
	var result Attempt

	op := func() (int, error) {
		result.Attempts++
		status, err := d.post(ctx, target, msg)
		result.StatusCode = status
		if err != nil && ctx.Err() != nil {
			// stop now; the worker may try again later
			return status, backoff.Permanent(err)
		}
		if err != nil && !retryable(status, err) {
			result.Permanent = true
			return status, backoff.Permanent(err)
		}
		return status, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(d.policy.backOff()),
		backoff.WithMaxTries(tries),
	)
	result.Err = err
	return result
}

func (d *Deliverer) post(ctx context.Context, target Target, msg WireMessage) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(msg.Body))
	if err != nil {
		return 0, errInvalidTarget{err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(d.headers.Signature, msg.Signature)
	if target.EventName != "" {
		req.Header.Set(d.headers.Event, target.EventName)
	}
	if target.DeliveryID != "" {
		req.Header.Set(d.headers.Delivery, target.DeliveryID)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
}

type errInvalidTarget struct{ err error }

func (e errInvalidTarget) Error() string { return "invalid delivery target: " + e.err.Error() }
func (e errInvalidTarget) Unwrap() error { return e.err }

// retryable reports whether another attempt could succeed.
func retryable(status int, err error) bool {
	var invalid errInvalidTarget
	if errors.As(err, &invalid) {
		return false
	}
	switch {
	case status == 0:
		return true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 300 && status < 500:
		return false
	}
	return true
}
