package models

import (
	"encoding/json"
	"time"
)

const (
	EndpointActive = "active"
	EndpointPaused = "paused"

	DeliveryPending   = "pending"
	DeliverySucceeded = "succeeded"
	DeliveryFailed    = "failed"
)

type Endpoint struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Events      []string `json:"events"` // JSON array in DB
	Status      string   `json:"status"` // active, paused
	CreatedAt   int64    `json:"created_at"`
	UpdatedAt   int64    `json:"updated_at"`
}

// Subscribes reports whether the endpoint wants eventName. "*" matches everything.
func (e *Endpoint) Subscribes(eventName string) bool {
	for _, ev := range e.Events {
		if ev == eventName || ev == "*" {
			return true
		}
	}
	return false
}

// Delivery keeps the exact signed bytes so a retry resends what was signed.
type Delivery struct {
	ID             string `json:"id"`
	EndpointID     string `json:"endpoint_id"`
	EventName      string `json:"event_name"`
	URL            string `json:"url"`
	Body           []byte `json:"-"`
	Signature      string `json:"signature"`
	Status         string `json:"status"` // pending, succeeded, failed
	Attempts       int    `json:"attempts"`
	ResponseStatus int    `json:"response_status,omitempty"`
	LastError      string `json:"last_error,omitempty"`
	NextAttemptAt  int64  `json:"next_attempt_at,omitempty"`
	DeliveredAt    int64  `json:"delivered_at,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Event is what the application emits; the dispatcher flattens it into
// the signed payload.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"event_name"`
	Data       map[string]any `json:"data"`
	OccurredAt time.Time      `json:"timestamp"`
}

// InboundEvent is a message the receiver accepted after verification.
type InboundEvent struct {
	ID         string          `json:"id"`
	DeliveryID string          `json:"delivery_id,omitempty"`
	EventName  string          `json:"event_name,omitempty"`
	Body       json.RawMessage `json:"body"`
	RemoteAddr string          `json:"remote_addr,omitempty"`
	ReceivedAt int64           `json:"received_at"`
}
