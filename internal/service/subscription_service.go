package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/logger"

	"github.com/shopspring/decimal"
)

var (
	ErrPackageNotFound              = domain.NewNotFoundError("package_not_found", "subscription package not found")
	ErrSubscriptionNotFound         = domain.NewNotFoundError("subscription_not_found", "subscription not found")
	ErrPendingSubscriptionNotFound  = domain.NewNotFoundError("pending_subscription_not_found", "no pending subscription for this package")
	ErrNotSubscriptionOwner         = domain.NewForbiddenError("not_subscription_owner", "you can only cancel your own subscription")
	ErrSubscriptionAlreadyCancelled = domain.NewBusinessError("subscription_already_cancelled", "subscription is already cancelled")
	ErrInvalidPackage               = domain.NewValidationError("invalid_package", "invalid subscription package")
	ErrFeatureNameRequired          = domain.NewValidationError("feature_name_required", "feature name is required")
)

const siteBalanceLabel = "Site Balance"

type SubscriptionStore interface {
	ListPackages(ctx context.Context, q db.Querier, activeOnly bool) ([]domain.SubscriptionPackage, error)
	GetPackage(ctx context.Context, q db.Querier, id int64) (*domain.SubscriptionPackage, error)
	CreatePackage(ctx context.Context, q db.Querier, p *domain.SubscriptionPackage) error
	UpdatePackage(ctx context.Context, q db.Querier, p *domain.SubscriptionPackage) (bool, error)
	FeaturesForTier(ctx context.Context, q db.Querier, tier domain.Tier) ([]domain.SubscriptionFeature, error)

	GetSubscription(ctx context.Context, q db.Querier, id int64) (*domain.UserSubscription, error)
	GetSubscriptionForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.UserSubscription, error)
	GetActiveForUser(ctx context.Context, q db.Querier, userID int64) (*domain.UserSubscription, error)
	HighestActiveTier(ctx context.Context, q db.Querier, userID int64) (domain.Tier, bool, error)
	CreateSubscription(ctx context.Context, q db.Querier, s *domain.UserSubscription) error
	LatestPendingForUpdate(ctx context.Context, q db.Querier, userID, packageID int64) (*domain.UserSubscription, error)
	Activate(ctx context.Context, q db.Querier, id int64, start, end time.Time, paymentRef string) error
	CancelOtherActive(ctx context.Context, q db.Querier, userID, exceptID int64) (int64, error)
	Cancel(ctx context.Context, q db.Querier, id int64) error
	ListExpired(ctx context.Context, q db.Querier, now time.Time, limit int) ([]domain.UserSubscription, error)

	CreatePayment(ctx context.Context, q db.Querier, p *domain.SubscriptionTransaction) error
	SetPaymentStatus(ctx context.Context, q db.Querier, subscriptionID int64, status, label string) (int64, error)
}

// SubscriptionService owns the package catalog, activation and the users.role
// projection. recomputeRole is the only code that writes a tier role.
type SubscriptionService struct {
	conn     db.Conn
	subs     SubscriptionStore
	users    UserStore
	txs      TransactionStore
	balance  *BalanceService
	audit    *AuditService
	notifier Notifier
	currency string
	now      clock
}

func NewSubscriptionService(conn db.Conn, subs SubscriptionStore, users UserStore, txs TransactionStore,
	balance *BalanceService, audit *AuditService, notifier Notifier, currency string) *SubscriptionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &SubscriptionService{
		conn:     conn,
		subs:     subs,
		users:    users,
		txs:      txs,
		balance:  balance,
		audit:    audit,
		notifier: notifier,
		currency: currency,
		now:      systemClock,
	}
}

// PackageInput is the admin-editable part of a package.
type PackageInput struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	BillingInterval string          `json:"billing_interval"`
	TierLevel       string          `json:"tier_level"`
	DurationMonths  *int            `json:"duration_months"`
	IsActive        *bool           `json:"is_active"`
}

func (s *SubscriptionService) packageFromInput(in PackageInput) (*domain.SubscriptionPackage, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidPackage.WithMessage("package name is required")
	}
	price := domain.RoundMoney(in.Price)
	if price.IsNegative() {
		return nil, ErrInvalidPackage.WithMessage("price cannot be negative")
	}
	tier, err := domain.ParseTier(in.TierLevel)
	if err != nil {
		return nil, ErrInvalidPackage.WithMessage("tier_level must be Basic, Premium or Elite")
	}
	if in.DurationMonths != nil && *in.DurationMonths <= 0 {
		return nil, ErrInvalidPackage.WithMessage("duration_months must be positive")
	}
	interval := strings.ToLower(strings.TrimSpace(in.BillingInterval))
	if interval == "" {
		interval = "monthly"
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return &domain.SubscriptionPackage{
		Name:            name,
		Description:     strings.TrimSpace(in.Description),
		Price:           price,
		Currency:        currency,
		BillingInterval: interval,
		TierLevel:       tier,
		DurationMonths:  in.DurationMonths,
		IsActive:        active,
	}, nil
}

// ListPackages returns purchasable packages with their tier features.
func (s *SubscriptionService) ListPackages(ctx context.Context) ([]domain.SubscriptionPackage, error) {
	return s.subs.ListPackages(ctx, s.conn, true)
}

func (s *SubscriptionService) ListAllPackages(ctx context.Context) ([]domain.SubscriptionPackage, error) {
	return s.subs.ListPackages(ctx, s.conn, false)
}

func (s *SubscriptionService) GetPackage(ctx context.Context, id int64) (*domain.SubscriptionPackage, error) {
	return s.loadPackage(ctx, s.conn, id)
}

func (s *SubscriptionService) CreatePackage(ctx context.Context, adminID int64, in PackageInput) (*domain.SubscriptionPackage, error) {
	pkg, err := s.packageFromInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.subs.CreatePackage(ctx, s.conn, pkg); err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	if pkg.Features, err = s.subs.FeaturesForTier(ctx, s.conn, pkg.TierLevel); err != nil {
		return nil, err
	}
	s.audit.LogAdminAction(ctx, adminID, "package_create", adminID, map[string]interface{}{"package_id": pkg.ID})
	return pkg, nil
}

func (s *SubscriptionService) UpdatePackage(ctx context.Context, adminID, id int64, in PackageInput) (*domain.SubscriptionPackage, error) {
	pkg, err := s.packageFromInput(in)
	if err != nil {
		return nil, err
	}
	pkg.ID = id
	ok, err := s.subs.UpdatePackage(ctx, s.conn, pkg)
	if err != nil {
		return nil, fmt.Errorf("update package: %w", err)
	}
	if !ok {
		return nil, ErrPackageNotFound
	}
	s.audit.LogAdminAction(ctx, adminID, "package_update", adminID, map[string]interface{}{"package_id": id})
	return s.loadPackage(ctx, s.conn, id)
}

func (s *SubscriptionService) loadPackage(ctx context.Context, q db.Querier, id int64) (*domain.SubscriptionPackage, error) {
	pkg, err := s.subs.GetPackage(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrPackageNotFound
	}
	return pkg, nil
}

// PurchasablePackage returns the package when it exists and is on sale.
func (s *SubscriptionService) PurchasablePackage(ctx context.Context, q db.Querier, id int64) (*domain.SubscriptionPackage, error) {
	pkg, err := s.loadPackage(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, ErrPackageNotFound.WithMessage("subscription package is not available")
	}
	return pkg, nil
}

// GetActive returns the user's active subscription with its package, or
// nil when they have none.
func (s *SubscriptionService) GetActive(ctx context.Context, userID int64) (*domain.UserSubscription, error) {
	sub, err := s.subs.GetActiveForUser(ctx, s.conn, userID)
	if err != nil || sub == nil {
		return nil, err
	}
	if sub.Package, err = s.subs.GetPackage(ctx, s.conn, sub.PackageID); err != nil {
		return nil, err
	}
	return sub, nil
}

// HasFeature reports whether the user's active package includes a feature
// whose name contains name.
func (s *SubscriptionService) HasFeature(ctx context.Context, userID int64, name string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, ErrFeatureNameRequired
	}
	sub, err := s.GetActive(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil || sub.Package == nil {
		return false, nil
	}
	return sub.Package.HasFeature(name), nil
}

// ResolveTier is the tier used for gating: the highest-priced active
// subscription, Basic when there is none.
func (s *SubscriptionService) ResolveTier(ctx context.Context, q db.Querier, userID int64) (domain.Tier, error) {
	tier, ok, err := s.subs.HighestActiveTier(ctx, q, userID)
	if err != nil {
		return domain.TierNone, err
	}
	if !ok {
		return domain.TierBasic, nil
	}
	return tier, nil
}

// CreatePending records the pending subscription and its payment row for a
// manually paid purchase.
func (s *SubscriptionService) CreatePending(ctx context.Context, q db.Querier, userID int64, pkg *domain.SubscriptionPackage) (*domain.UserSubscription, error) {
	sub := &domain.UserSubscription{
		UserID:    userID,
		PackageID: pkg.ID,
		Status:    domain.SubscriptionStatusPending,
		AutoRenew: true,
	}
	if err := s.subs.CreateSubscription(ctx, q, sub); err != nil {
		return nil, fmt.Errorf("create pending subscription: %w", err)
	}
	if err := s.subs.CreatePayment(ctx, q, &domain.SubscriptionTransaction{
		SubscriptionID: sub.ID,
		Amount:         pkg.Price,
		Status:         domain.SubscriptionPaymentPending,
		PaymentMethod:  "manual",
	}); err != nil {
		return nil, fmt.Errorf("create subscription payment: %w", err)
	}
	return sub, nil
}

// ActivatePending activates the newest pending subscription of the user to
// packageID. It fails with ErrPendingSubscriptionNotFound when there is none.
func (s *SubscriptionService) ActivatePending(ctx context.Context, q db.Querier, userID, packageID, transactionID int64, label string) (*domain.UserSubscription, error) {
	// Same lock order as Cancel and ExpireDue: user row, then subscription.
	user, err := s.users.LockForUpdate(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	pending, err := s.subs.LatestPendingForUpdate(ctx, q, userID, packageID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, ErrPendingSubscriptionNotFound
	}
	return s.Activate(ctx, q, ActivationParams{
		UserID:                userID,
		PackageID:             packageID,
		TransactionID:         transactionID,
		PaymentMethodLabel:    label,
		PendingSubscriptionID: pending.ID,
	})
}

// ActivationParams describe one paid activation. A zero PendingSubscriptionID
// makes Activate insert a new active row.
type ActivationParams struct {
	UserID                int64
	PackageID             int64
	TransactionID         int64
	PaymentMethodLabel    string
	PendingSubscriptionID int64
}

// Activate runs inside the caller's unit of work. The user row is locked
// first so concurrent activations for one user serialize.
func (s *SubscriptionService) Activate(ctx context.Context, q db.Querier, p ActivationParams) (*domain.UserSubscription, error) {
	user, err := s.users.LockForUpdate(ctx, q, p.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	pkg, err := s.loadPackage(ctx, q, p.PackageID)
	if err != nil {
		return nil, err
	}

	start := s.now()
	end := pkg.EndDate(start)
	ref := strconv.FormatInt(p.TransactionID, 10)

	if _, err := s.subs.CancelOtherActive(ctx, q, p.UserID, p.PendingSubscriptionID); err != nil {
		return nil, fmt.Errorf("cancel previous subscriptions: %w", err)
	}

	sub := &domain.UserSubscription{
		ID:              p.PendingSubscriptionID,
		UserID:          p.UserID,
		PackageID:       pkg.ID,
		Status:          domain.SubscriptionStatusActive,
		StartDate:       &start,
		EndDate:         &end,
		AutoRenew:       true,
		PaymentMethodID: ref,
		Package:         pkg,
	}

	if p.PendingSubscriptionID != 0 {
		if err := s.subs.Activate(ctx, q, p.PendingSubscriptionID, start, end, ref); err != nil {
			return nil, fmt.Errorf("activate subscription: %w", err)
		}
		n, err := s.subs.SetPaymentStatus(ctx, q, p.PendingSubscriptionID, domain.SubscriptionPaymentCompleted, p.PaymentMethodLabel)
		if err != nil {
			return nil, fmt.Errorf("complete subscription payment: %w", err)
		}
		if n == 0 {
			if err := s.recordPayment(ctx, q, sub.ID, pkg.Price, p.PaymentMethodLabel); err != nil {
				return nil, err
			}
		}
	} else {
		if err := s.subs.CreateSubscription(ctx, q, sub); err != nil {
			return nil, fmt.Errorf("create subscription: %w", err)
		}
		if err := s.recordPayment(ctx, q, sub.ID, pkg.Price, p.PaymentMethodLabel); err != nil {
			return nil, err
		}
	}

	if err := s.recomputeRole(ctx, q, user); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) recordPayment(ctx context.Context, q db.Querier, subID int64, amount decimal.Decimal, label string) error {
	err := s.subs.CreatePayment(ctx, q, &domain.SubscriptionTransaction{
		SubscriptionID: subID,
		Amount:         amount,
		Status:         domain.SubscriptionPaymentCompleted,
		PaymentMethod:  label,
	})
	if err != nil {
		return fmt.Errorf("record subscription payment: %w", err)
	}
	return nil
}

// recomputeRole projects the highest active tier onto users.role. Admins
// keep their role.
func (s *SubscriptionService) recomputeRole(ctx context.Context, q db.Querier, user *domain.User) error {
	if user.IsAdmin() {
		return nil
	}
	tier, ok, err := s.subs.HighestActiveTier(ctx, q, user.ID)
	if err != nil {
		return err
	}
	role := domain.RoleUser
	if ok {
		role = tier.Role()
	}
	if role == user.Role {
		return nil
	}
	if err := s.users.UpdateRole(ctx, q, user.ID, role); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	user.Role = role
	return nil
}

// CancelPending cancels the newest pending subscription of the user to
// packageID and its payment row. A missing row is not an error.
func (s *SubscriptionService) CancelPending(ctx context.Context, q db.Querier, userID, packageID int64) (bool, error) {
	pending, err := s.subs.LatestPendingForUpdate(ctx, q, userID, packageID)
	if err != nil || pending == nil {
		return false, err
	}
	if err := s.subs.Cancel(ctx, q, pending.ID); err != nil {
		return false, err
	}
	if _, err := s.subs.SetPaymentStatus(ctx, q, pending.ID, domain.SubscriptionPaymentCancelled, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel stops a subscription on behalf of its owner or an admin.
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID, actorID int64, actorIsAdmin bool) (*domain.UserSubscription, error) {
	var sub *domain.UserSubscription
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		peek, err := s.subs.GetSubscription(ctx, q, subscriptionID)
		if err != nil {
			return err
		}
		if peek == nil {
			return ErrSubscriptionNotFound
		}
		if !actorIsAdmin && peek.UserID != actorID {
			return ErrNotSubscriptionOwner
		}

		user, err := s.users.LockForUpdate(ctx, q, peek.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		if sub, err = s.subs.GetSubscriptionForUpdate(ctx, q, subscriptionID); err != nil {
			return err
		}
		if sub == nil {
			return ErrSubscriptionNotFound
		}
		if sub.Status == domain.SubscriptionStatusCancelled {
			return ErrSubscriptionAlreadyCancelled
		}

		if err := s.subs.Cancel(ctx, q, sub.ID); err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		if sub.Status == domain.SubscriptionStatusPending {
			if _, err := s.subs.SetPaymentStatus(ctx, q, sub.ID, domain.SubscriptionPaymentCancelled, ""); err != nil {
				return err
			}
		}
		sub.Status = domain.SubscriptionStatusCancelled
		sub.AutoRenew = false
		return s.recomputeRole(ctx, q, user)
	})
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{"subscription_id": sub.ID}
	if actorIsAdmin && actorID != sub.UserID {
		s.audit.LogAdminAction(ctx, actorID, domain.AuditActionSubscriptionCancel, sub.UserID, details)
	} else {
		s.audit.Log(ctx, sub.UserID, domain.AuditActionSubscriptionCancel, domain.AuditCategorySubscription, details)
	}
	s.notifier.Notify(sub.UserID, MsgSubscriptionChanged, map[string]interface{}{
		"subscription_id": sub.ID,
		"status":          sub.Status,
	})
	return sub, nil
}

// PurchaseResult is returned by PurchaseWithBalance.
type PurchaseResult struct {
	Subscription *domain.UserSubscription `json:"subscription"`
	Transaction  *domain.Transaction      `json:"transaction"`
	NewBalance   decimal.Decimal          `json:"new_balance"`
}

// PurchaseWithBalance pays for a package from the site balance and activates
// it immediately.
func (s *SubscriptionService) PurchaseWithBalance(ctx context.Context, userID, packageID int64) (*PurchaseResult, error) {
	res := &PurchaseResult{}
	err := s.conn.WithTx(ctx, func(q db.Querier) error {
		pkg, err := s.PurchasablePackage(ctx, q, packageID)
		if err != nil {
			return err
		}

		if pkg.Price.IsPositive() {
			if res.NewBalance, err = s.balance.Debit(ctx, q, userID, pkg.Price); err != nil {
				return err
			}
		} else {
			acc, err := s.balance.account(ctx, q, userID)
			if err != nil {
				return err
			}
			res.NewBalance = acc.Balance
		}

		itemID := pkg.ID
		tx := &domain.Transaction{
			UserID:               userID,
			Type:                 domain.TransactionTypeSubscriptionSiteBalance,
			Amount:               pkg.Price,
			Currency:             pkg.Currency,
			ItemCategory:         domain.ItemCategorySubscription,
			PayableItemID:        &itemID,
			Status:               domain.TransactionStatusCompleted,
			AdminNotes:           "Paid with site balance",
			PaymentMethodDetails: siteBalanceLabel,
		}
		if tx.Currency == "" {
			tx.Currency = s.currency
		}
		if err := s.txs.Create(ctx, q, tx); err != nil {
			return fmt.Errorf("record transaction: %w", err)
		}
		res.Transaction = tx

		res.Subscription, err = s.Activate(ctx, q, ActivationParams{
			UserID:             userID,
			PackageID:          pkg.ID,
			TransactionID:      tx.ID,
			PaymentMethodLabel: siteBalanceLabel,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	tier := res.Subscription.Package.TierLevel
	SubscriptionsActivated.WithLabelValues(tier.String()).Inc()
	s.audit.Log(ctx, userID, domain.AuditActionSubscriptionPurchase, domain.AuditCategorySubscription, map[string]interface{}{
		"subscription_id": res.Subscription.ID,
		"transaction_id":  res.Transaction.ID,
		"amount":          res.Transaction.Amount.StringFixed(2),
		"source":          "site_balance",
	})
	s.notifier.Notify(userID, MsgSubscriptionChanged, map[string]interface{}{
		"subscription_id": res.Subscription.ID,
		"status":          res.Subscription.Status,
		"tier":            tier,
	})
	return res, nil
}

const expiryBatchSize = 100

// errExpirySkipped rolls back a candidate that was cancelled or renewed
// between listing and locking.
var errExpirySkipped = errors.New("subscription no longer active")

// ExpireDue cancels active subscriptions past their end date, one unit of
// work per subscription, and returns how many were expired. Renewal needs a
// new payment, so auto_renew does not keep a row alive.
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.subs.ListExpired(ctx, s.conn, s.now(), expiryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired subscriptions: %w", err)
	}

	log := logger.WithContext(ctx).With("component", "subscription_expiry")
	expired := 0
	for _, candidate := range due {
		err := s.conn.WithTx(ctx, func(q db.Querier) error {
			user, err := s.users.LockForUpdate(ctx, q, candidate.UserID)
			if err != nil {
				return err
			}
			if user == nil {
				return ErrUserNotFound
			}
			sub, err := s.subs.GetSubscriptionForUpdate(ctx, q, candidate.ID)
			if err != nil {
				return err
			}
			if sub == nil || sub.Status != domain.SubscriptionStatusActive {
				return errExpirySkipped
			}
			if err := s.subs.Cancel(ctx, q, sub.ID); err != nil {
				return err
			}
			return s.recomputeRole(ctx, q, user)
		})
		if errors.Is(err, errExpirySkipped) {
			continue
		}
		if err != nil {
			log.Error("failed to expire subscription", "subscription_id", candidate.ID, "error", err)
			continue
		}
		expired++
		s.audit.Log(ctx, candidate.UserID, domain.AuditActionSubscriptionExpire, domain.AuditCategorySubscription,
			map[string]interface{}{"subscription_id": candidate.ID})
		s.notifier.Notify(candidate.UserID, MsgSubscriptionChanged, map[string]interface{}{
			"subscription_id": candidate.ID,
			"status":          domain.SubscriptionStatusCancelled,
		})
	}
	if expired > 0 {
		log.Info("expired subscriptions", "count", expired)
	}
	return expired, nil
}
