package repository

import (
	"context"
	"errors"
	"time"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"

	"github.com/jackc/pgx/v5"
)

type SubscriptionRepository struct{}

func NewSubscriptionRepository() *SubscriptionRepository {
	return &SubscriptionRepository{}
}

const packageColumns = `id, name, description, price, currency, billing_interval, tier_level, duration_months, is_active, created_at`

// ListPackages returns packages ordered by price, each with its tier's features.
func (r *SubscriptionRepository) ListPackages(ctx context.Context, q db.Querier, activeOnly bool) ([]domain.SubscriptionPackage, error) {
	rows, err := q.Query(ctx, `
		SELECT `+packageColumns+`
		FROM subscription_packages
		WHERE is_active OR NOT $1
		ORDER BY price ASC, id ASC
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	packages := []domain.SubscriptionPackage{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		packages = append(packages, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byTier, err := r.allFeatures(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range packages {
		packages[i].Features = byTier[packages[i].TierLevel]
		if packages[i].Features == nil {
			packages[i].Features = []domain.SubscriptionFeature{}
		}
	}
	return packages, nil
}

func (r *SubscriptionRepository) GetPackage(ctx context.Context, q db.Querier, id int64) (*domain.SubscriptionPackage, error) {
	p, err := scanPackage(q.QueryRow(ctx, `SELECT `+packageColumns+` FROM subscription_packages WHERE id = $1`, id))
	if err != nil || p == nil {
		return p, err
	}
	if p.Features, err = r.FeaturesForTier(ctx, q, p.TierLevel); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *SubscriptionRepository) CreatePackage(ctx context.Context, q db.Querier, p *domain.SubscriptionPackage) error {
	return q.QueryRow(ctx, `
		INSERT INTO subscription_packages (name, description, price, currency, billing_interval, tier_level, duration_months, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, p.Name, p.Description, p.Price, p.Currency, p.BillingInterval, p.TierLevel.String(), p.DurationMonths, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt)
}

// UpdatePackage overwrites the mutable fields. It returns false if no row matched.
func (r *SubscriptionRepository) UpdatePackage(ctx context.Context, q db.Querier, p *domain.SubscriptionPackage) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE subscription_packages
		SET name = $2, description = $3, price = $4, currency = $5, billing_interval = $6,
		    tier_level = $7, duration_months = $8, is_active = $9
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Price, p.Currency, p.BillingInterval, p.TierLevel.String(), p.DurationMonths, p.IsActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SubscriptionRepository) FeaturesForTier(ctx context.Context, q db.Querier, tier domain.Tier) ([]domain.SubscriptionFeature, error) {
	rows, err := q.Query(ctx, `
		SELECT feature_name, feature_description
		FROM subscription_features
		WHERE tier_level = $1
		ORDER BY id
	`, tier.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	features := []domain.SubscriptionFeature{}
	for rows.Next() {
		var f domain.SubscriptionFeature
		if err := rows.Scan(&f.Name, &f.Description); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

func (r *SubscriptionRepository) allFeatures(ctx context.Context, q db.Querier) (map[domain.Tier][]domain.SubscriptionFeature, error) {
	rows, err := q.Query(ctx, `SELECT tier_level, feature_name, feature_description FROM subscription_features ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Tier][]domain.SubscriptionFeature)
	for rows.Next() {
		var tierName string
		var f domain.SubscriptionFeature
		if err := rows.Scan(&tierName, &f.Name, &f.Description); err != nil {
			return nil, err
		}
		tier, err := domain.ParseTier(tierName)
		if err != nil {
			return nil, err
		}
		out[tier] = append(out[tier], f)
	}
	return out, rows.Err()
}

const subscriptionColumns = `id, user_id, package_id, status, start_date, end_date, auto_renew, payment_method_id, created_at, updated_at`

func (r *SubscriptionRepository) GetSubscription(ctx context.Context, q db.Querier, id int64) (*domain.UserSubscription, error) {
	return scanSubscription(q.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE id = $1`, id))
}

func (r *SubscriptionRepository) GetSubscriptionForUpdate(ctx context.Context, q db.Querier, id int64) (*domain.UserSubscription, error) {
	return scanSubscription(q.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM user_subscriptions WHERE id = $1 FOR UPDATE`, id))
}

// GetActiveForUser returns the user's highest-priced active subscription.
func (r *SubscriptionRepository) GetActiveForUser(ctx context.Context, q db.Querier, userID int64) (*domain.UserSubscription, error) {
	row := q.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.package_id, s.status, s.start_date, s.end_date, s.auto_renew,
		       s.payment_method_id, s.created_at, s.updated_at
		FROM user_subscriptions s
		JOIN subscription_packages p ON p.id = s.package_id
		WHERE s.user_id = $1 AND s.status = 'active'
		ORDER BY p.price DESC, s.created_at DESC
		LIMIT 1
	`, userID)
	return scanSubscription(row)
}

// HighestActiveTier returns the tier of the highest-priced active
// subscription, and false when there is none.
func (r *SubscriptionRepository) HighestActiveTier(ctx context.Context, q db.Querier, userID int64) (domain.Tier, bool, error) {
	var tierName string
	err := q.QueryRow(ctx, `
		SELECT p.tier_level
		FROM user_subscriptions s
		JOIN subscription_packages p ON p.id = s.package_id
		WHERE s.user_id = $1 AND s.status = 'active'
		ORDER BY p.price DESC, s.created_at DESC
		LIMIT 1
	`, userID).Scan(&tierName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TierNone, false, nil
		}
		return domain.TierNone, false, err
	}
	tier, err := domain.ParseTier(tierName)
	if err != nil {
		return domain.TierNone, false, err
	}
	return tier, true, nil
}

func (r *SubscriptionRepository) CreateSubscription(ctx context.Context, q db.Querier, s *domain.UserSubscription) error {
	return q.QueryRow(ctx, `
		INSERT INTO user_subscriptions (user_id, package_id, status, start_date, end_date, auto_renew, payment_method_id)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, created_at, updated_at
	`, s.UserID, s.PackageID, s.Status, s.StartDate, s.EndDate, s.AutoRenew, s.PaymentMethodID,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// LatestPendingForUpdate locks the newest pending subscription of userID to packageID.
func (r *SubscriptionRepository) LatestPendingForUpdate(ctx context.Context, q db.Querier, userID, packageID int64) (*domain.UserSubscription, error) {
	return scanSubscription(q.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_subscriptions
		WHERE user_id = $1 AND package_id = $2 AND status = 'pending_verification'
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, userID, packageID))
}

func (r *SubscriptionRepository) Activate(ctx context.Context, q db.Querier, id int64, start, end time.Time, paymentRef string) error {
	_, err := q.Exec(ctx, `
		UPDATE user_subscriptions
		SET status = 'active', start_date = $2, end_date = $3, payment_method_id = $4, updated_at = NOW()
		WHERE id = $1
	`, id, start, end, paymentRef)
	return err
}

// CancelOtherActive cancels every active subscription of userID except exceptID.
func (r *SubscriptionRepository) CancelOtherActive(ctx context.Context, q db.Querier, userID, exceptID int64) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE user_subscriptions
		SET status = 'cancelled', auto_renew = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND status = 'active' AND id <> $2
	`, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *SubscriptionRepository) Cancel(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.Exec(ctx, `
		UPDATE user_subscriptions
		SET status = 'cancelled', auto_renew = FALSE, updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// ListExpired returns active subscriptions whose end date is before now.
func (r *SubscriptionRepository) ListExpired(ctx context.Context, q db.Querier, now time.Time, limit int) ([]domain.UserSubscription, error) {
	rows, err := q.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM user_subscriptions
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date < $1
		ORDER BY end_date ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []domain.UserSubscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) CreatePayment(ctx context.Context, q db.Querier, p *domain.SubscriptionTransaction) error {
	return q.QueryRow(ctx, `
		INSERT INTO subscription_transactions (subscription_id, amount, status, payment_method)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, p.SubscriptionID, p.Amount, p.Status, p.PaymentMethod).Scan(&p.ID, &p.CreatedAt)
}

// SetPaymentStatus moves the subscription's pending payment rows to status.
// An empty label keeps the stored payment method.
func (r *SubscriptionRepository) SetPaymentStatus(ctx context.Context, q db.Querier, subscriptionID int64, status, label string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE subscription_transactions
		SET status = $2, payment_method = COALESCE(NULLIF($3, ''), payment_method)
		WHERE subscription_id = $1 AND status = 'pending_verification'
	`, subscriptionID, status, label)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPackage(row pgx.Row) (*domain.SubscriptionPackage, error) {
	var p domain.SubscriptionPackage
	var tierName string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.BillingInterval,
		&tierName, &p.DurationMonths, &p.IsActive, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tier, err := domain.ParseTier(tierName)
	if err != nil {
		return nil, err
	}
	p.TierLevel = tier
	return &p, nil
}

func scanSubscription(row pgx.Row) (*domain.UserSubscription, error) {
	var s domain.UserSubscription
	var paymentRef *string
	if err := row.Scan(&s.ID, &s.UserID, &s.PackageID, &s.Status, &s.StartDate, &s.EndDate,
		&s.AutoRenew, &paymentRef, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if paymentRef != nil {
		s.PaymentMethodID = *paymentRef
	}
	return &s, nil
}
