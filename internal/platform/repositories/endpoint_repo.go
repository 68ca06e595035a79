package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"hookguard/internal/platform/models"
)

var ErrNotFound = errors.New("not found")

type EndpointRepository struct {
	db *sql.DB
}

func NewEndpointRepository(db *sql.DB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

const endpointColumns = `id, url, description, events, status, created_at, updated_at`

func (r *EndpointRepository) Create(endpoint *models.Endpoint) error {
	endpoint.ID = "ep_" + uuid.New().String()
	endpoint.CreatedAt = time.Now().Unix()
	endpoint.UpdatedAt = endpoint.CreatedAt
	if endpoint.Status == "" {
		endpoint.Status = models.EndpointActive
	}

	eventsJSON, err := json.Marshal(endpoint.Events)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO endpoints (id, url, description, events, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, endpoint.ID, endpoint.URL, endpoint.Description, string(eventsJSON), endpoint.Status, endpoint.CreatedAt, endpoint.UpdatedAt)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row scanner) (*models.Endpoint, error) {
	var e models.Endpoint
	var eventsStr string
	var description sql.NullString

	if err := row.Scan(&e.ID, &e.URL, &description, &eventsStr, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Description = description.String
	if err := json.Unmarshal([]byte(eventsStr), &e.Events); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EndpointRepository) GetByID(id string) (*models.Endpoint, error) {
	row := r.db.QueryRow(`SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	e, err := scanEndpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *EndpointRepository) List() ([]*models.Endpoint, error) {
	rows, err := r.db.Query(`SELECT ` + endpointColumns + ` FROM endpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	endpoints := []*models.Endpoint{}
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (r *EndpointRepository) Update(endpoint *models.Endpoint) error {
	eventsJSON, err := json.Marshal(endpoint.Events)
	if err != nil {
		return err
	}
	endpoint.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE endpoints
		SET url = ?, description = ?, events = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.Exec(query, endpoint.URL, endpoint.Description, string(eventsJSON), endpoint.Status, endpoint.UpdatedAt, endpoint.ID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r *EndpointRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// GetByEvent returns active endpoints subscribed to eventName. Events are
// stored as a JSON array, so matching happens here rather than in SQL.
func (r *EndpointRepository) GetByEvent(eventName string) ([]*models.Endpoint, error) {
	rows, err := r.db.Query(`SELECT `+endpointColumns+` FROM endpoints WHERE status = ?`, models.EndpointActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		if e.Subscribes(eventName) {
			matched = append(matched, e)
		}
	}
	return matched, rows.Err()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
