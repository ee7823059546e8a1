package repository

import (
	"context"
	"errors"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type BalanceRepository struct{}

func NewBalanceRepository() *BalanceRepository {
	return &BalanceRepository{}
}

// GetOrCreate returns the balance row, creating a zero one on first access.
// It returns nil when the user does not exist.
func (r *BalanceRepository) GetOrCreate(ctx context.Context, q db.Querier, userID int64) (*domain.BalanceAccount, error) {
	if ok, err := r.ensure(ctx, q, userID); !ok || err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `SELECT user_id, balance, updated_at FROM user_balances WHERE user_id = $1`, userID)
	return scanBalance(row)
}

// LockForUpdate is GetOrCreate that also takes the row lock.
func (r *BalanceRepository) LockForUpdate(ctx context.Context, q db.Querier, userID int64) (*domain.BalanceAccount, error) {
	if ok, err := r.ensure(ctx, q, userID); !ok || err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `SELECT user_id, balance, updated_at FROM user_balances WHERE user_id = $1 FOR UPDATE`, userID)
	return scanBalance(row)
}

func (r *BalanceRepository) SetBalance(ctx context.Context, q db.Querier, userID int64, balance decimal.Decimal) error {
	_, err := q.Exec(ctx,
		`UPDATE user_balances SET balance = $2, updated_at = NOW() WHERE user_id = $1`,
		userID, balance,
	)
	return err
}

func (r *BalanceRepository) ensure(ctx context.Context, q db.Querier, userID int64) (bool, error) {
	_, err := q.Exec(ctx,
		`INSERT INTO user_balances (user_id, balance) VALUES ($1, 0) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if db.IsForeignKeyViolation(err, "") {
		return false, nil
	}
	return err == nil, err
}

func scanBalance(row pgx.Row) (*domain.BalanceAccount, error) {
	var b domain.BalanceAccount
	if err := row.Scan(&b.UserID, &b.Balance, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
