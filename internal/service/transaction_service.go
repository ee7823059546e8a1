package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrTransactionNotFound       = domain.NewNotFoundError("transaction_not_found", "transaction not found")
	ErrPaymentSelectionRequired  = domain.NewValidationError("payment_selection_required", "country and payment method are required")
	ErrInvalidCategory           = domain.NewValidationError("invalid_item_category", "item category must be subscription, gift, boost or balance_topup")
	ErrUnsupportedCategory       = domain.NewValidationError("unsupported_item_category", "this item category cannot be purchased yet")
	ErrItemRequired              = domain.NewValidationError("item_required", "item id is required")
	ErrReferenceRequired         = domain.NewValidationError("reference_required", "payment reference is required")
	ErrInvalidVerificationStatus = domain.NewValidationError("invalid_verification_status", "status must be completed or declined")
	ErrPaymentMethodUnavailable  = domain.NewBusinessError("payment_method_unavailable", "payment method is not available for this country")
	ErrNotAwaitingReference      = domain.NewBusinessError("not_awaiting_reference", "transaction is not awaiting a payment reference")
	ErrNotPendingVerification    = domain.NewBusinessError("not_pending_verification", "transaction is not pending verification")
	ErrReconciliationNotFound    = domain.NewNotFoundError("reconciliation_not_found", "reconciliation item not found")
	ErrReconciliationResolved    = domain.NewBusinessError("reconciliation_resolved", "reconciliation item is already resolved")
)

type TransactionStore interface {
	Create(ctx context.Context, q db.Querier, tx *domain.Transaction) error
	GetForUser(ctx context.Context, q db.Querier, id, userID int64) (*domain.Transaction, error)
	GetForUserForUpdate(ctx context.Context, q db.Querier, id, userID int64) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.Transaction, error)
	SubmitReference(ctx context.Context, q db.Querier, id int64, reference string) error
	UpdateStatus(ctx context.Context, q db.Querier, id int64, status domain.TransactionStatus, notes string) error
	ListByUser(ctx context.Context, q db.Querier, userID int64, limit, offset int) ([]domain.Transaction, int, error)
	ListByStatus(ctx context.Context, q db.Querier, status domain.TransactionStatus, limit, offset int) ([]domain.Transaction, int, error)
}

// PaymentMethodStore is the payment method configuration collaborator.
type PaymentMethodStore interface {
	GetCountryPaymentMethodDetail(ctx context.Context, q db.Querier, countryID, paymentMethodID int64) (*domain.PaymentMethodDetail, error)
}

type ReconciliationStore interface {
	Create(ctx context.Context, q db.Querier, item *domain.ReconciliationItem) error
	GetForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.ReconciliationItem, error)
	Resolve(ctx context.Context, q db.Querier, id, adminID int64, notes string, at time.Time) error
	List(ctx context.Context, q db.Querier, includeResolved bool, limit, offset int) ([]domain.ReconciliationItem, error)
}

// TransactionService drives manually paid purchases from initiation through
// admin verification and fulfillment.
type TransactionService struct {
	conn     db.Conn
	txs      TransactionStore
	methods  PaymentMethodStore
	recon    ReconciliationStore
	subs     *SubscriptionService
	gifts    *GiftService
	balance  *BalanceService
	audit    *AuditService
	notifier Notifier
	events   EventPublisher
	currency string
	now      clock
}

func NewTransactionService(conn db.Conn, txs TransactionStore, methods PaymentMethodStore, recon ReconciliationStore,
	subs *SubscriptionService, gifts *GiftService, balance *BalanceService, audit *AuditService,
	notifier Notifier, events EventPublisher, currency string) *TransactionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if events == nil {
		events = noopPublisher{}
	}
	return &TransactionService{
		conn:     conn,
		txs:      txs,
		methods:  methods,
		recon:    recon,
		subs:     subs,
		gifts:    gifts,
		balance:  balance,
		audit:    audit,
		notifier: notifier,
		events:   events,
		currency: currency,
		now:      systemClock,
	}
}

type InitiateInput struct {
	CountryID           int64  `json:"country_id"`
	PaymentMethodTypeID int64  `json:"payment_method_type_id"`
	ItemCategory        string `json:"item_category"`
	ItemID              int64  `json:"item_id"`

	// gift delivery
	RecipientID   int64  `json:"recipient_id"`
	GiftMessage   string `json:"gift_message"`
	GiftAnonymous bool   `json:"gift_anonymous"`

	// balance_topup only
	Amount decimal.Decimal `json:"amount"`
}

type InitiateResult struct {
	Transaction                 *domain.Transaction `json:"transaction"`
	PaymentInstructions         string              `json:"payment_instructions"`
	PaymentConfigurationDetails json.RawMessage     `json:"payment_configuration_details"`
}

func (in *InitiateInput) validate(userID int64) (domain.ItemCategory, error) {
	if in.CountryID <= 0 || in.PaymentMethodTypeID <= 0 {
		return "", ErrPaymentSelectionRequired
	}
	cat, ok := domain.ParseItemCategory(strings.ToLower(strings.TrimSpace(in.ItemCategory)))
	if !ok {
		return "", ErrInvalidCategory
	}
	switch cat {
	case domain.ItemCategoryBoost:
		return "", ErrUnsupportedCategory
	case domain.ItemCategorySubscription:
		if in.ItemID <= 0 {
			return "", ErrItemRequired
		}
	case domain.ItemCategoryGift:
		if in.ItemID <= 0 || in.RecipientID <= 0 {
			return "", ErrGiftFieldsRequired
		}
		if in.RecipientID == userID {
			return "", ErrCannotGiftSelf
		}
		in.GiftMessage = strings.TrimSpace(in.GiftMessage)
		if utf8.RuneCountInString(in.GiftMessage) > maxGiftMessageLength {
			return "", ErrGiftMessageTooLong.WithMessage("gift message must be at most %d characters", maxGiftMessageLength)
		}
	case domain.ItemCategoryBalanceTopUp:
		in.Amount = domain.RoundMoney(in.Amount)
		if !in.Amount.IsPositive() {
			return "", ErrInvalidAmount
		}
	}
	return cat, nil
}

// Initiate prices the item, checks the payment method and opens a
// pending_payment transaction. Subscription purchases also get their
// pending subscription in the same unit of work.
func (s *TransactionService) Initiate(ctx context.Context, userID int64, in InitiateInput) (*InitiateResult, error) {
	cat, err := in.validate(userID)
	if err != nil {
		return nil, err
	}

	res := &InitiateResult{}
	err = s.conn.WithTx(ctx, func(q db.Querier) error {
		detail, err := s.methods.GetCountryPaymentMethodDetail(ctx, q, in.CountryID, in.PaymentMethodTypeID)
		if err != nil {
			return err
		}
		if detail == nil || !detail.IsActive {
			return ErrPaymentMethodUnavailable
		}

		countryID, methodID := in.CountryID, in.PaymentMethodTypeID
		tx := &domain.Transaction{
			UserID:               userID,
			Type:                 domain.TransactionTypeManual,
			PaymentCountryID:     &countryID,
			PaymentMethodTypeID:  &methodID,
			Currency:             s.currency,
			ItemCategory:         cat,
			Status:               domain.TransactionStatusPendingPayment,
			PaymentMethodDetails: detail.PaymentMethodName,
		}

		var pkg *domain.SubscriptionPackage
		switch cat {
		case domain.ItemCategorySubscription:
			if pkg, err = s.subs.PurchasablePackage(ctx, q, in.ItemID); err != nil {
				return err
			}
			tx.Amount = pkg.Price
			if pkg.Currency != "" {
				tx.Currency = pkg.Currency
			}
			tx.PayableItemID = &pkg.ID
		case domain.ItemCategoryGift:
			item, err := s.gifts.PrepareGiftPurchase(ctx, q, userID, in.RecipientID, in.ItemID)
			if err != nil {
				return err
			}
			tx.Amount = item.Price
			tx.PayableItemID = &item.ID
			tx.Meta = domain.TransactionMeta{
				GiftRecipientID: in.RecipientID,
				GiftMessage:     in.GiftMessage,
				GiftAnonymous:   in.GiftAnonymous,
			}
		case domain.ItemCategoryBalanceTopUp:
			tx.Amount = in.Amount
		}

		if err := s.txs.Create(ctx, q, tx); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if pkg != nil {
			if _, err := s.subs.CreatePending(ctx, q, userID, pkg); err != nil {
				return err
			}
		}

		res.Transaction = tx
		res.PaymentInstructions = detail.UserInstructions
		res.PaymentConfigurationDetails = detail.ConfigurationDetails
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, userID, domain.AuditActionTransactionInitiate, domain.AuditCategoryTransaction, map[string]interface{}{
		"transaction_id": res.Transaction.ID,
		"item_category":  string(cat),
		"amount":         res.Transaction.Amount.StringFixed(2),
	})
	return res, nil
}

// SubmitReference stores the caller's payment reference verbatim and moves
// the transaction to pending_verification.
func (s *TransactionService) SubmitReference(ctx context.Context, userID, transactionID int64, reference string) (*domain.Transaction, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, ErrReferenceRequired
	}

	var tx *domain.Transaction
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		tx, err = s.txs.GetForUserForUpdate(ctx, q, transactionID, userID)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if tx.Status != domain.TransactionStatusPendingPayment {
			return ErrNotAwaitingReference
		}
		if err := s.txs.SubmitReference(ctx, q, tx.ID, reference); err != nil {
			return fmt.Errorf("submit reference: %w", err)
		}
		tx.Status = domain.TransactionStatusPendingVerification
		tx.UserProvidedRef = reference
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, userID, domain.AuditActionTransactionReference, domain.AuditCategoryTransaction, map[string]interface{}{
		"transaction_id": tx.ID,
	})
	return tx, nil
}

func (s *TransactionService) Get(ctx context.Context, userID, transactionID int64) (*domain.Transaction, error) {
	tx, err := s.txs.GetForUser(ctx, s.conn, transactionID, userID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *TransactionService) ListForUser(ctx context.Context, userID int64, limit, offset int) (*Page[domain.Transaction], error) {
	limit, offset = normalizePage(limit, offset, 20)
	items, total, err := s.txs.ListByUser(ctx, s.conn, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page[domain.Transaction]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// ListPendingVerification is the admin review queue, oldest first.
func (s *TransactionService) ListPendingVerification(ctx context.Context, limit, offset int) (*Page[domain.Transaction], error) {
	limit, offset = normalizePage(limit, offset, 20)
	items, total, err := s.txs.ListByStatus(ctx, s.conn, domain.TransactionStatusPendingVerification, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page[domain.Transaction]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

type VerifyResult struct {
	Transaction    *domain.Transaction        `json:"transaction"`
	Subscription   *domain.UserSubscription   `json:"subscription,omitempty"`
	Gift           *domain.UserGift           `json:"gift,omitempty"`
	NewBalance     *decimal.Decimal           `json:"new_balance,omitempty"`
	Reconciliation *domain.ReconciliationItem `json:"reconciliation,omitempty"`
}

// Verify records the admin decision on a pending_verification transaction and
// fulfills it on completion. Fulfillment that cannot find its target still
// commits the status change and leaves a reconciliation item.
func (s *TransactionService) Verify(ctx context.Context, adminID, transactionID int64, status domain.TransactionStatus, notes string) (*VerifyResult, error) {
	if !status.IsTerminal() {
		return nil, ErrInvalidVerificationStatus
	}
	notes = strings.TrimSpace(notes)

	res := &VerifyResult{}
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		tx, err := s.txs.GetForUpdate(ctx, q, transactionID)
		if err != nil {
			return err
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if tx.Status != domain.TransactionStatusPendingVerification {
			return ErrNotPendingVerification.WithMessage("transaction is %s, not pending verification", tx.Status)
		}

		if err := s.txs.UpdateStatus(ctx, q, tx.ID, status, notes); err != nil {
			return fmt.Errorf("update transaction status: %w", err)
		}
		tx.Status = status
		tx.AdminNotes = notes
		res.Transaction = tx

		if status == domain.TransactionStatusCompleted {
			return s.fulfill(ctx, q, tx, res)
		}
		if tx.ItemCategory == domain.ItemCategorySubscription && tx.PayableItemID != nil {
			if _, err := s.subs.CancelPending(ctx, q, tx.UserID, *tx.PayableItemID); err != nil {
				return fmt.Errorf("cancel pending subscription: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterVerify(ctx, adminID, res)
	return res, nil
}

func (s *TransactionService) fulfill(ctx context.Context, q db.Querier, tx *domain.Transaction, res *VerifyResult) error {
	switch tx.ItemCategory {
	case domain.ItemCategorySubscription:
		if tx.PayableItemID == nil {
			return s.reconcile(ctx, q, tx, res, domain.ReconcileMissingPackage, "transaction has no package id")
		}
		sub, err := s.subs.ActivatePending(ctx, q, tx.UserID, *tx.PayableItemID, tx.ID, tx.PaymentMethodDetails)
		switch {
		case errors.Is(err, ErrPendingSubscriptionNotFound):
			return s.reconcile(ctx, q, tx, res, domain.ReconcileMissingPendingSubscription,
				fmt.Sprintf("no pending subscription for user %d and package %d", tx.UserID, *tx.PayableItemID))
		case errors.Is(err, ErrPackageNotFound):
			return s.reconcile(ctx, q, tx, res, domain.ReconcileMissingPackage,
				fmt.Sprintf("package %d no longer exists", *tx.PayableItemID))
		case err != nil:
			return err
		}
		res.Subscription = sub

	case domain.ItemCategoryGift:
		g, err := s.gifts.DeliverPurchased(ctx, q, tx)
		switch {
		case errors.Is(err, ErrGiftItemNotFound):
			return s.reconcile(ctx, q, tx, res, domain.ReconcileMissingGiftItem, "gift item no longer exists")
		case errors.Is(err, ErrRecipientNotFound):
			return s.reconcile(ctx, q, tx, res, domain.ReconcileMissingGiftRecipient,
				fmt.Sprintf("gift recipient %d no longer exists", tx.Meta.GiftRecipientID))
		case err != nil:
			return err
		}
		res.Gift = g

	case domain.ItemCategoryBalanceTopUp:
		nb, err := s.balance.Credit(ctx, q, tx.UserID, tx.Amount)
		if err != nil {
			return fmt.Errorf("credit top-up: %w", err)
		}
		res.NewBalance = &nb
	}
	return nil
}

func (s *TransactionService) reconcile(ctx context.Context, q db.Querier, tx *domain.Transaction, res *VerifyResult, reason, details string) error {
	item := &domain.ReconciliationItem{
		TransactionID: tx.ID,
		Reason:        reason,
		Details:       details,
	}
	if err := s.recon.Create(ctx, q, item); err != nil {
		return fmt.Errorf("create reconciliation item: %w", err)
	}
	logger.WithContext(ctx).Error("paid transaction could not be fulfilled",
		"transaction_id", tx.ID, "user_id", tx.UserID, "reason", reason, "details", details)
	res.Reconciliation = item
	return nil
}

// TransactionEvent is published after a transaction reaches a terminal status.
type TransactionEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID int64           `json:"transaction_id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	ItemCategory  string          `json:"item_category"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reconcile     bool            `json:"needs_reconciliation"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (s *TransactionService) afterVerify(ctx context.Context, adminID int64, res *VerifyResult) {
	tx := res.Transaction
	TransactionsVerified.WithLabelValues(string(tx.Status), string(tx.ItemCategory)).Inc()
	if res.Reconciliation != nil {
		ReconciliationItems.WithLabelValues(res.Reconciliation.Reason).Inc()
	}
	if res.Subscription != nil && res.Subscription.Package != nil {
		SubscriptionsActivated.WithLabelValues(res.Subscription.Package.TierLevel.String()).Inc()
	}
	if res.Gift != nil {
		GiftsSent.WithLabelValues("manual").Inc()
		s.gifts.notifyReceived(res.Gift)
	}

	details := map[string]interface{}{
		"transaction_id": tx.ID,
		"status":         string(tx.Status),
		"item_category":  string(tx.ItemCategory),
	}
	if res.Reconciliation != nil {
		details["reconciliation_id"] = res.Reconciliation.ID
	}
	s.audit.LogAdminAction(ctx, adminID, domain.AuditActionTransactionVerify, tx.UserID, details)

	s.notifier.Notify(tx.UserID, MsgTransactionVerified, map[string]interface{}{
		"transaction_id": tx.ID,
		"status":         tx.Status,
		"item_category":  tx.ItemCategory,
	})

	publish(ctx, s.events, "transaction."+string(tx.Status), TransactionEvent{
		EventID:       uuid.NewString(),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Status:        string(tx.Status),
		ItemCategory:  string(tx.ItemCategory),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Reconcile:     res.Reconciliation != nil,
		OccurredAt:    s.now(),
	})
}

func (s *TransactionService) ListReconciliation(ctx context.Context, includeResolved bool, limit, offset int) ([]domain.ReconciliationItem, error) {
	limit, offset = normalizePage(limit, offset, 20)
	return s.recon.List(ctx, s.conn, includeResolved, limit, offset)
}

// ResolveReconciliation closes a reconciliation item once an operator has
// fixed the fulfillment by hand.
func (s *TransactionService) ResolveReconciliation(ctx context.Context, adminID, id int64, notes string) (*domain.ReconciliationItem, error) {
	notes = strings.TrimSpace(notes)
	var item *domain.ReconciliationItem
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		var err error
		item, err = s.recon.GetForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if item == nil {
			return ErrReconciliationNotFound
		}
		if item.ResolvedAt != nil {
			return ErrReconciliationResolved
		}
		now := s.now()
		if err := s.recon.Resolve(ctx, q, id, adminID, notes, now); err != nil {
			return err
		}
		item.ResolvedAt = &now
		item.ResolvedBy = &adminID
		item.ResolutionNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogAdminAction(ctx, adminID, domain.AuditActionReconciliationResolve, adminID, map[string]interface{}{
		"reconciliation_id": id,
		"transaction_id":    item.TransactionID,
	})
	return item, nil
}
