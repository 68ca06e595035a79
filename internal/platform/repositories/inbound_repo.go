package repositories

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"hookguard/internal/platform/models"
)

// ErrDuplicate is returned when a delivery ID was already recorded.
var ErrDuplicate = errors.New("duplicate delivery")

type InboundRepository struct {
	db *sql.DB
}

func NewInboundRepository(db *sql.DB) *InboundRepository {
	return &InboundRepository{db: db}
}

func (r *InboundRepository) Create(e *models.InboundEvent) error {
	e.ID = "in_" + uuid.New().String()
	if e.ReceivedAt == 0 {
		e.ReceivedAt = time.Now().Unix()
	}

	var deliveryID any
	if e.DeliveryID != "" {
		deliveryID = e.DeliveryID
	}

	_, err := r.db.Exec(`
		INSERT INTO inbound_events (id, delivery_id, event_name, body, remote_addr, received_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, deliveryID, e.EventName, []byte(e.Body), e.RemoteAddr, e.ReceivedAt)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrDuplicate
	}
	return err
}

func (r *InboundRepository) List(limit int) ([]*models.InboundEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, delivery_id, event_name, body, remote_addr, received_at
		FROM inbound_events ORDER BY received_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*models.InboundEvent{}
	for rows.Next() {
		var e models.InboundEvent
		var deliveryID, eventName, remoteAddr sql.NullString
		var body []byte
		if err := rows.Scan(&e.ID, &deliveryID, &eventName, &body, &remoteAddr, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.DeliveryID = deliveryID.String
		e.EventName = eventName.String
		e.RemoteAddr = remoteAddr.String
		e.Body = body
		events = append(events, &e)
	}
	return events, rows.Err()
}
