package repository

import (
	"context"
	"encoding/json"
	"errors"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

type TransactionRepository struct{}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{}
}

const transactionColumns = `id, user_id, type, payment_country_id, payment_method_type_id, amount, currency,
	item_category, payable_item_id, status, user_provided_reference, admin_notes, payment_method_details,
	meta, created_at, updated_at`

// Create inserts a new transaction
func (r *TransactionRepository) Create(ctx context.Context, q db.Querier, tx *domain.Transaction) error {
	metaJSON, err := json.Marshal(tx.Meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	return q.QueryRow(ctx, `
		INSERT INTO transactions (user_id, type, payment_country_id, payment_method_type_id, amount, currency,
		                          item_category, payable_item_id, status, payment_method_details, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)
		RETURNING id, created_at, updated_at
	`, tx.UserID, tx.Type, tx.PaymentCountryID, tx.PaymentMethodTypeID, tx.Amount, tx.Currency,
		tx.ItemCategory, tx.PayableItemID, tx.Status, tx.PaymentMethodDetails, metaJSON,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
}

// GetForUser returns a transaction only if it belongs to userID
func (r *TransactionRepository) GetForUser(ctx context.Context, q db.Querier, id, userID int64) (*domain.Transaction, error) {
	return scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID))
}

// GetForUserForUpdate is GetForUser with a row lock
func (r *TransactionRepository) GetForUserForUpdate(ctx context.Context, q db.Querier, id, userID int64) (*domain.Transaction, error) {
	return scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID))
}

// GetForUpdate locks a transaction regardless of owner
func (r *TransactionRepository) GetForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.Transaction, error) {
	return scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

// SubmitReference stores the payer's reference and moves the transaction to
// pending_verification.
func (r *TransactionRepository) SubmitReference(ctx context.Context, q db.Querier, id int64, reference string) error {
	_, err := q.Exec(ctx, `
		UPDATE transactions
		SET user_provided_reference = $2, status = 'pending_verification', updated_at = NOW()
		WHERE id = $1
	`, id, reference)
	return err
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, q db.Querier, id int64, status domain.TransactionStatus, notes string) error {
	_, err := q.Exec(ctx, `
		UPDATE transactions
		SET status = $2, admin_notes = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`, id, status, notes)
	return err
}

// ListByUser returns a page of the user's transactions, newest first, and the total count
func (r *TransactionRepository) ListByUser(ctx context.Context, q db.Querier, userID int64, limit, offset int) ([]domain.Transaction, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list, err := scanTransactions(rows)
	return list, total, err
}

// ListByStatus returns a page of transactions in status, oldest first, and the total count
func (r *TransactionRepository) ListByStatus(ctx context.Context, q db.Querier, status domain.TransactionStatus, limit, offset int) ([]domain.Transaction, int, error) {
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE status = $1`, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list, err := scanTransactions(rows)
	return list, total, err
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx                        domain.Transaction
		reference, notes, details *string
		metaJSON                  []byte
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.PaymentCountryID, &tx.PaymentMethodTypeID,
		&tx.Amount, &tx.Currency, &tx.ItemCategory, &tx.PayableItemID, &tx.Status,
		&reference, &notes, &details, &metaJSON, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if reference != nil {
		tx.UserProvidedRef = *reference
	}
	if notes != nil {
		tx.AdminNotes = *notes
	}
	if details != nil {
		tx.PaymentMethodDetails = *details
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &tx.Meta)
	}
	return &tx, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	result := []domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	return result, rows.Err()
}
