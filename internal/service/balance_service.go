package service

import (
	"context"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientBalance = domain.NewBusinessError("insufficient_balance", "insufficient balance")
	ErrUserNotFound        = domain.NewNotFoundError("user_not_found", "user not found")
	ErrInvalidAmount       = domain.NewValidationError("invalid_amount", "amount must be greater than zero")
)

type BalanceStore interface {
	GetOrCreate(ctx context.Context, q db.Querier, userID int64) (*domain.BalanceAccount, error)
	LockForUpdate(ctx context.Context, q db.Querier, userID int64) (*domain.BalanceAccount, error)
	SetBalance(ctx context.Context, q db.Querier, userID int64, balance decimal.Decimal) error
}

// BalanceService owns the site-currency ledger. Debit and Credit never open
// their own transaction; they join the caller's unit of work through q.
type BalanceService struct {
	conn db.Conn
	repo BalanceStore
}

func NewBalanceService(conn db.Conn, repo BalanceStore) *BalanceService {
	return &BalanceService{conn: conn, repo: repo}
}

// GetBalance returns the user's account, creating an empty one if needed
func (s *BalanceService) GetBalance(ctx context.Context, userID int64) (*domain.BalanceAccount, error) {
	return s.account(ctx, s.conn, userID)
}

func (s *BalanceService) account(ctx context.Context, q db.Querier, userID int64) (*domain.BalanceAccount, error) {
	acc, err := s.repo.GetOrCreate(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, ErrUserNotFound
	}
	return acc, nil
}

// Debit locks the account row and subtracts amount. It fails without effect
// when the balance is short.
func (s *BalanceService) Debit(ctx context.Context, q db.Querier, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount, err := validAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}

	acc, err := s.repo.LockForUpdate(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if acc == nil {
		return decimal.Zero, ErrUserNotFound
	}

	if acc.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientBalance.WithMessage(
			"insufficient balance: available %s, required %s", acc.Balance.StringFixed(2), amount.StringFixed(2))
	}

	newBalance := acc.Balance.Sub(amount)
	if err := s.repo.SetBalance(ctx, q, userID, newBalance); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

// Credit locks the account row and adds amount.
func (s *BalanceService) Credit(ctx context.Context, q db.Querier, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	amount, err := validAmount(amount)
	if err != nil {
		return decimal.Zero, err
	}

	acc, err := s.repo.LockForUpdate(ctx, q, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if acc == nil {
		return decimal.Zero, ErrUserNotFound
	}

	newBalance := acc.Balance.Add(amount)
	if err := s.repo.SetBalance(ctx, q, userID, newBalance); err != nil {
		return decimal.Zero, err
	}
	return newBalance, nil
}

func validAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}
