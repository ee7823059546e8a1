package repository

import (
	"context"
	"errors"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ReconciliationRepository struct{}

func NewReconciliationRepository() *ReconciliationRepository {
	return &ReconciliationRepository{}
}

const reconciliationColumns = `id, transaction_id, reason, details, created_at, resolved_at, resolved_by, resolution_notes`

func (r *ReconciliationRepository) Create(ctx context.Context, q db.Querier, item *domain.ReconciliationItem) error {
	return q.QueryRow(ctx, `
		INSERT INTO reconciliation_items (transaction_id, reason, details)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, item.TransactionID, item.Reason, item.Details).Scan(&item.ID, &item.CreatedAt)
}

func (r *ReconciliationRepository) GetForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.ReconciliationItem, error) {
	item, err := scanReconciliation(q.QueryRow(ctx, `SELECT `+reconciliationColumns+` FROM reconciliation_items WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

func (r *ReconciliationRepository) Resolve(ctx context.Context, q db.Querier, id, adminID int64, notes string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE reconciliation_items
		SET resolved_at = $2, resolved_by = $3, resolution_notes = NULLIF($4, '')
		WHERE id = $1
	`, id, at, adminID, notes)
	return err
}

// List returns open items, or every item when includeResolved is set.
func (r *ReconciliationRepository) List(ctx context.Context, q db.Querier, includeResolved bool, limit, offset int) ([]domain.ReconciliationItem, error) {
	rows, err := q.Query(ctx, `
		SELECT `+reconciliationColumns+`
		FROM reconciliation_items
		WHERE resolved_at IS NULL OR $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, includeResolved, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.ReconciliationItem{}
	for rows.Next() {
		item, err := scanReconciliation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanReconciliation(row pgx.Row) (*domain.ReconciliationItem, error) {
	var item domain.ReconciliationItem
	var notes *string
	if err := row.Scan(&item.ID, &item.TransactionID, &item.Reason, &item.Details, &item.CreatedAt,
		&item.ResolvedAt, &item.ResolvedBy, &notes); err != nil {
		return nil, err
	}
	if notes != nil {
		item.ResolutionNotes = *notes
	}
	return &item, nil
}
