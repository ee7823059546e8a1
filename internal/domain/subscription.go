package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending_verification"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Status values of subscription_transactions rows.
const (
	SubscriptionPaymentPending   = "pending_verification"
	SubscriptionPaymentCompleted = "completed"
	SubscriptionPaymentCancelled = "cancelled"
)

type SubscriptionFeature struct {
	Name        string `db:"feature_name" json:"name"`
	Description string `db:"feature_description" json:"description"`
}

type SubscriptionPackage struct {
	ID              int64           `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Description     string          `db:"description" json:"description,omitempty"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Currency        string          `db:"currency" json:"currency"`
	BillingInterval string          `db:"billing_interval" json:"billing_interval"`
	TierLevel       Tier            `db:"tier_level" json:"tier_level"`
	DurationMonths  *int            `db:"duration_months" json:"duration_months,omitempty"`
	IsActive        bool            `db:"is_active" json:"is_active"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`

	// all features registered for TierLevel
	Features []SubscriptionFeature `json:"features"`
}

// EndDate is when a subscription to p that starts at start runs out.
func (p *SubscriptionPackage) EndDate(start time.Time) time.Time {
	if p.DurationMonths != nil && *p.DurationMonths > 0 {
		return start.AddDate(0, *p.DurationMonths, 0)
	}
	switch strings.ToLower(p.BillingInterval) {
	case "annually", "yearly":
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// HasFeature matches feature names case-insensitively by substring.
func (p *SubscriptionPackage) HasFeature(name string) bool {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return false
	}
	for _, f := range p.Features {
		if strings.Contains(strings.ToLower(f.Name), needle) {
			return true
		}
	}
	return false
}

type UserSubscription struct {
	ID        int64              `db:"id" json:"id"`
	UserID    int64              `db:"user_id" json:"user_id"`
	PackageID int64              `db:"package_id" json:"package_id"`
	Status    SubscriptionStatus `db:"status" json:"status"`
	StartDate *time.Time         `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time         `db:"end_date" json:"end_date,omitempty"`
	AutoRenew bool               `db:"auto_renew" json:"auto_renew"`
	// id of the fulfilling transaction once active
	PaymentMethodID string    `db:"payment_method_id" json:"payment_method_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`

	Package *SubscriptionPackage `json:"package,omitempty"`
}

type SubscriptionTransaction struct {
	ID             int64           `db:"id" json:"id"`
	SubscriptionID int64           `db:"subscription_id" json:"subscription_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Status         string          `db:"status" json:"status"`
	PaymentMethod  string          `db:"payment_method" json:"payment_method"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
