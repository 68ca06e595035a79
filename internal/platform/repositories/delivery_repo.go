package repositories

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"hookguard/internal/platform/models"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, endpoint_id, event_name, url, body, signature, status, attempts, response_status, last_error, next_attempt_at, delivered_at, created_at, updated_at`

func (r *DeliveryRepository) Create(d *models.Delivery) error {
	if d.ID == "" {
		d.ID = "dlv_" + uuid.New().String()
	}
	d.CreatedAt = time.Now().Unix()
	d.UpdatedAt = d.CreatedAt
	if d.Status == "" {
		d.Status = models.DeliveryPending
	}

	query := `
		INSERT INTO deliveries (id, endpoint_id, event_name, url, body, signature, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, d.ID, d.EndpointID, d.EventName, d.URL, d.Body, d.Signature, d.Status, d.Attempts, d.CreatedAt, d.UpdatedAt)
	return err
}

func scanDelivery(row scanner) (*models.Delivery, error) {
	var d models.Delivery
	var responseStatus, nextAttemptAt, deliveredAt sql.NullInt64
	var lastError sql.NullString

	err := row.Scan(&d.ID, &d.EndpointID, &d.EventName, &d.URL, &d.Body, &d.Signature, &d.Status, &d.Attempts,
		&responseStatus, &lastError, &nextAttemptAt, &deliveredAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}

	d.ResponseStatus = int(responseStatus.Int64)
	d.LastError = lastError.String
	d.NextAttemptAt = nextAttemptAt.Int64
	d.DeliveredAt = deliveredAt.Int64
	return &d, nil
}

func (r *DeliveryRepository) GetByID(id string) (*models.Delivery, error) {
	row := r.db.QueryRow(`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// List returns the newest deliveries first, optionally filtered by status.
func (r *DeliveryRepository) List(status string, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = r.db.Query(`SELECT `+deliveryColumns+` FROM deliveries ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = r.db.Query(`SELECT `+deliveryColumns+` FROM deliveries WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := []*models.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *DeliveryRepository) MarkSucceeded(id string, attempts, responseStatus int) error {
	now := time.Now().Unix()
	_, err := r.db.Exec(`
		UPDATE deliveries
		SET status = ?, attempts = ?, response_status = ?, last_error = NULL, next_attempt_at = NULL, delivered_at = ?, updated_at = ?
		WHERE id = ?
	`, models.DeliverySucceeded, attempts, responseStatus, now, now, id)
	return err
}

// MarkFailed records the failure. nextAttemptAt of zero means the worker
// must not pick the delivery up again.
func (r *DeliveryRepository) MarkFailed(id string, attempts, responseStatus int, lastError string, nextAttemptAt int64) error {
	var next any
	if nextAttemptAt > 0 {
		next = nextAttemptAt
	}
	var status any
	if responseStatus > 0 {
		status = responseStatus
	}
	_, err := r.db.Exec(`
		UPDATE deliveries
		SET status = ?, attempts = ?, response_status = ?, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ?
	`, models.DeliveryFailed, attempts, status, lastError, next, time.Now().Unix(), id)
	return err
}

// GetRetryable returns deliveries that have not yet used up maxAttempts
// and are due again: failed ones whose next_attempt_at is at or before now,
// and pending ones untouched since staleBefore, which a dispatch that died
// mid-flight leaves behind.
func (r *DeliveryRepository) GetRetryable(now, staleBefore int64, maxAttempts, limit int) ([]*models.Delivery, error) {
	rows, err := r.db.Query(`
		SELECT `+deliveryColumns+` FROM deliveries
		WHERE attempts < ? AND (
			(status = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?)
			OR (status = ? AND updated_at <= ?)
		)
		ORDER BY COALESCE(next_attempt_at, updated_at) ASC
		LIMIT ?
	`, maxAttempts, models.DeliveryFailed, now, models.DeliveryPending, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
