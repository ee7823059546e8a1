package repository

import (
	"context"
	"encoding/json"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

// AuditRepository handles audit log database operations
type AuditRepository struct{}

// NewAuditRepository creates a new audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, q db.Querier, log *domain.AuditLog) error {
	detailsJSON, err := json.Marshal(log.Details)
	if err != nil || log.Details == nil {
		detailsJSON = []byte("{}")
	}

	return q.QueryRow(ctx, `
		INSERT INTO audit_logs (user_id, actor_id, action, category, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, log.UserID, log.ActorID, log.Action, log.Category, detailsJSON).Scan(&log.ID, &log.CreatedAt)
}

// List returns the newest audit logs first. A zero userID or empty category
// leaves that filter off.
func (r *AuditRepository) List(ctx context.Context, q db.Querier, userID int64, category string, limit int) ([]*domain.AuditLog, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, actor_id, action, category, details, created_at
		FROM audit_logs
		WHERE ($1::bigint = 0 OR user_id = $1)
		  AND ($2::text = '' OR category = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

func scanAuditLogs(rows pgx.Rows) ([]*domain.AuditLog, error) {
	logs := []*domain.AuditLog{}
	for rows.Next() {
		var log domain.AuditLog
		var detailsJSON []byte
		if err := rows.Scan(&log.ID, &log.UserID, &log.ActorID, &log.Action, &log.Category, &detailsJSON, &log.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detailsJSON, &log.Details); err != nil {
			log.Details = make(map[string]interface{})
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
