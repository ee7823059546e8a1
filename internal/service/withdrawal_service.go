package service

import (
	"context"
	"strings"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/logger"

	"github.com/shopspring/decimal"
)

var (
	ErrWithdrawalNotFound          = domain.NewNotFoundError("withdrawal_not_found", "withdrawal request not found")
	ErrPaymentDetailsRequired      = domain.NewValidationError("payment_details_required", "payment details are required")
	ErrWithdrawalBelowMinimum      = domain.NewValidationError("withdrawal_below_minimum", "amount is below the minimum withdrawal")
	ErrInvalidWithdrawalStatus     = domain.NewValidationError("invalid_withdrawal_status", "status must be approved, declined or processed")
	ErrInvalidWithdrawalTransition = domain.NewBusinessError("invalid_withdrawal_transition", "withdrawal request cannot move to that status")
	ErrWithdrawalProcessed         = domain.NewBusinessError("withdrawal_already_processed", "withdrawal was already processed and needs manual reconciliation")
)

type WithdrawalStore interface {
	Create(ctx context.Context, q db.Querier, w *domain.WithdrawalRequest) error
	GetByIDForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.WithdrawalRequest, error)
	UpdateStatus(ctx context.Context, q db.Querier, id int64, status domain.WithdrawalStatus, adminID int64, notes string, at time.Time) error
	ListByUser(ctx context.Context, q db.Querier, userID int64, limit int) ([]domain.WithdrawalRequest, error)
	List(ctx context.Context, q db.Querier, status domain.WithdrawalStatus, limit, offset int) ([]domain.WithdrawalRequest, error)
}

type WithdrawalService struct {
	conn      db.Conn
	repo      WithdrawalStore
	balance   *BalanceService
	audit     *AuditService
	notifier  Notifier
	minAmount decimal.Decimal
	now       clock
}

func NewWithdrawalService(conn db.Conn, repo WithdrawalStore, balance *BalanceService, audit *AuditService, notifier Notifier, minAmount decimal.Decimal) *WithdrawalService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &WithdrawalService{
		conn:      conn,
		repo:      repo,
		balance:   balance,
		audit:     audit,
		notifier:  notifier,
		minAmount: minAmount,
		now:       systemClock,
	}
}

// CreateRequest debits the amount and records a pending request in one
// transaction. Insufficient balance leaves no request behind.
func (s *WithdrawalService) CreateRequest(ctx context.Context, userID int64, amount decimal.Decimal, paymentDetails string) (*domain.WithdrawalRequest, decimal.Decimal, error) {
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, decimal.Zero, ErrInvalidAmount
	}
	if amount.LessThan(s.minAmount) {
		return nil, decimal.Zero, ErrWithdrawalBelowMinimum.WithMessage("minimum withdrawal amount is %s", s.minAmount.StringFixed(2))
	}
	paymentDetails = strings.TrimSpace(paymentDetails)
	if paymentDetails == "" {
		return nil, decimal.Zero, ErrPaymentDetailsRequired
	}

	var (
		req        *domain.WithdrawalRequest
		newBalance decimal.Decimal
	)
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		if newBalance, err = s.balance.Debit(ctx, q, userID, amount); err != nil {
			return err
		}
		req = &domain.WithdrawalRequest{
			UserID:             userID,
			Amount:             amount,
			UserPaymentDetails: paymentDetails,
			Status:             domain.WithdrawalStatusPending,
		}
		return s.repo.Create(ctx, q, req)
	})
	if err != nil {
		return nil, decimal.Zero, err
	}

	WithdrawalTransitions.WithLabelValues(string(domain.WithdrawalStatusPending)).Inc()
	s.audit.Log(ctx, userID, domain.AuditActionWithdrawRequest, domain.AuditCategoryWithdrawal, map[string]interface{}{
		"withdrawal_id": req.ID,
		"amount":        amount.StringFixed(2),
	})
	return req, newBalance, nil
}

// UpdateStatus applies an admin decision. Declining refunds the amount in the
// same transaction; declined and processed requests never move again.
func (s *WithdrawalService) UpdateStatus(ctx context.Context, requestID int64, newStatus domain.WithdrawalStatus, adminID int64, notes string) (*domain.WithdrawalRequest, error) {
	switch newStatus {
	case domain.WithdrawalStatusApproved, domain.WithdrawalStatusDeclined, domain.WithdrawalStatusProcessed:
	default:
		return nil, ErrInvalidWithdrawalStatus
	}
	notes = strings.TrimSpace(notes)

	var (
		req      *domain.WithdrawalRequest
		refunded bool
	)
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		req, err = s.repo.GetByIDForUpdate(ctx, q, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return ErrWithdrawalNotFound
		}

		if req.Status == domain.WithdrawalStatusProcessed && newStatus == domain.WithdrawalStatusDeclined {
			return ErrWithdrawalProcessed
		}
		if !req.Status.CanTransitionTo(newStatus) {
			return ErrInvalidWithdrawalTransition.WithMessage("cannot move a %s withdrawal request to %s", req.Status, newStatus)
		}

		now := s.now()
		if err := s.repo.UpdateStatus(ctx, q, req.ID, newStatus, adminID, notes, now); err != nil {
			return err
		}

		if newStatus == domain.WithdrawalStatusDeclined {
			if _, err := s.balance.Credit(ctx, q, req.UserID, req.Amount); err != nil {
				return err
			}
			refunded = true
		}

		req.Status = newStatus
		req.AdminNotes = notes
		req.ProcessedBy = &adminID
		req.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	WithdrawalTransitions.WithLabelValues(string(newStatus)).Inc()
	logger.WithContext(ctx).Info("withdrawal status updated",
		"withdrawal_id", req.ID, "status", newStatus, "admin_id", adminID, "refunded", refunded)
	s.audit.LogAdminAction(ctx, adminID, domain.AuditActionWithdrawStatus, req.UserID, map[string]interface{}{
		"withdrawal_id": req.ID,
		"status":        string(newStatus),
		"refunded":      refunded,
	})
	s.notifier.Notify(req.UserID, MsgWithdrawalUpdated, map[string]interface{}{
		"withdrawal_id": req.ID,
		"status":        newStatus,
	})
	return req, nil
}

func (s *WithdrawalService) ListForUser(ctx context.Context, userID int64, limit int) ([]domain.WithdrawalRequest, error) {
	limit, _ = normalizePage(limit, 0, 50)
	return s.repo.ListByUser(ctx, s.conn, userID, limit)
}

// List is the admin queue view; an empty status lists everything.
func (s *WithdrawalService) List(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.WithdrawalRequest, error) {
	limit, offset = normalizePage(limit, offset, 20)
	return s.repo.List(ctx, s.conn, status, limit, offset)
}
