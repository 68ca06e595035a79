package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	apiContext "hookguard/internal/api/context"
	"hookguard/internal/platform/auth"
)

type AuditLog struct {
	ID           string                 `json:"id"`
	Actor        string                 `json:"actor"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

// Logger records admin mutations of the endpoint registry.
type Logger struct {
	db *sql.DB
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

// Log never fails the caller: an audit write error is logged and dropped.
func (l *Logger) Log(ctx context.Context, action, resourceType, resourceID string, metadata map[string]interface{}) {
	actor := "system"
	if claims, ok := ctx.Value(apiContext.Claims).(*auth.Claims); ok && claims.Subject != "" {
		actor = claims.Subject
	}

	ip := "unknown"
	ua := "unknown"
	if req, ok := ctx.Value(apiContext.Request).(*http.Request); ok {
		ip = req.RemoteAddr
		ua = req.UserAgent()
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		metaJSON = []byte("{}")
	}

	entry := &AuditLog{
		ID:           "audit_" + uuid.New().String(),
		Actor:        actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
		IPAddress:    ip,
		UserAgent:    ua,
		CreatedAt:    time.Now().Unix(),
	}

	query := `
		INSERT INTO audit_logs (id, actor, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = l.db.ExecContext(ctx, query, entry.ID, entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID, string(metaJSON), entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		log.Error().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("failed to write audit log")
	}
}

func (l *Logger) List(limit int) ([]*AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.Query(`
		SELECT id, actor, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*AuditLog{}
	for rows.Next() {
		var a AuditLog
		var meta sql.NullString
		if err := rows.Scan(&a.ID, &a.Actor, &a.Action, &a.ResourceType, &a.ResourceID, &meta, &a.IPAddress, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid {
			json.Unmarshal([]byte(meta.String), &a.Metadata)
		}
		logs = append(logs, &a)
	}
	return logs, rows.Err()
}
