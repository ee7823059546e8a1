package repository

import (
	"context"
	"errors"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

type WithdrawalRepository struct{}

func NewWithdrawalRepository() *WithdrawalRepository {
	return &WithdrawalRepository{}
}

const withdrawalColumns = `id, user_id, amount, user_payment_details, status, admin_notes,
	processed_by, processed_at, requested_at`

// Create inserts a pending request
func (r *WithdrawalRepository) Create(ctx context.Context, q db.Querier, w *domain.WithdrawalRequest) error {
	if w.Status == "" {
		w.Status = domain.WithdrawalStatusPending
	}
	return q.QueryRow(ctx, `
		INSERT INTO withdrawal_requests (user_id, amount, user_payment_details, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, requested_at
	`, w.UserID, w.Amount, w.UserPaymentDetails, w.Status).Scan(&w.ID, &w.RequestedAt)
}

// GetByIDForUpdate retrieves a request and locks it
func (r *WithdrawalRepository) GetByIDForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.WithdrawalRequest, error) {
	row := q.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
	return scanWithdrawal(row)
}

// UpdateStatus stores the admin decision
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, q db.Querier, id int64, status domain.WithdrawalStatus, adminID int64, notes string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE withdrawal_requests
		SET status = $2, processed_by = $3, processed_at = $4, admin_notes = NULLIF($5, '')
		WHERE id = $1
	`, id, status, adminID, at, notes)
	return err
}

// ListByUser retrieves a user's requests, newest first
func (r *WithdrawalRepository) ListByUser(ctx context.Context, q db.Querier, userID int64, limit int) ([]domain.WithdrawalRequest, error) {
	rows, err := q.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWithdrawals(rows)
}

// List retrieves requests for admin review, oldest first. Empty status means all.
func (r *WithdrawalRepository) List(ctx context.Context, q db.Querier, status domain.WithdrawalStatus, limit, offset int) ([]domain.WithdrawalRequest, error) {
	rows, err := q.Query(ctx, `
		SELECT `+withdrawalColumns+`
		FROM withdrawal_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY requested_at ASC
		LIMIT $2 OFFSET $3
	`, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWithdrawals(rows)
}

func scanWithdrawal(row pgx.Row) (*domain.WithdrawalRequest, error) {
	var w domain.WithdrawalRequest
	var adminNotes *string

	if err := row.Scan(
		&w.ID, &w.UserID, &w.Amount, &w.UserPaymentDetails, &w.Status, &adminNotes,
		&w.ProcessedBy, &w.ProcessedAt, &w.RequestedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if adminNotes != nil {
		w.AdminNotes = *adminNotes
	}
	return &w, nil
}

func scanWithdrawals(rows pgx.Rows) ([]domain.WithdrawalRequest, error) {
	withdrawals := []domain.WithdrawalRequest{}

	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *w)
	}

	return withdrawals, rows.Err()
}
