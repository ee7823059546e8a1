package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusPendingPayment      TransactionStatus = "pending_payment"
	TransactionStatusPendingVerification TransactionStatus = "pending_verification"
	TransactionStatusCompleted           TransactionStatus = "completed"
	TransactionStatusDeclined            TransactionStatus = "declined"
)

// IsTerminal reports whether no further transitions are possible.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusDeclined
}

type ItemCategory string

const (
	ItemCategorySubscription ItemCategory = "subscription"
	ItemCategoryGift         ItemCategory = "gift"
	ItemCategoryBoost        ItemCategory = "boost"
	ItemCategoryBalanceTopUp ItemCategory = "balance_topup"
)

func ParseItemCategory(s string) (ItemCategory, bool) {
	switch c := ItemCategory(s); c {
	case ItemCategorySubscription, ItemCategoryGift, ItemCategoryBoost, ItemCategoryBalanceTopUp:
		return c, true
	}
	return "", false
}

// Transaction types
const (
	TransactionTypeManual                  = "manual"
	TransactionTypeSubscriptionSiteBalance = "subscription_site_balance"
	TransactionTypeGiftSiteBalance         = "gift_site_balance"
	TransactionTypeGift                    = "gift"
)

// TransactionMeta carries what fulfillment needs beyond the payable item id.
type TransactionMeta struct {
	GiftRecipientID int64  `json:"gift_recipient_id,omitempty"`
	GiftMessage     string `json:"gift_message,omitempty"`
	GiftAnonymous   bool   `json:"gift_anonymous,omitempty"`
}

type Transaction struct {
	ID                   int64             `db:"id" json:"id"`
	UserID               int64             `db:"user_id" json:"user_id"`
	Type                 string            `db:"type" json:"type"`
	PaymentCountryID     *int64            `db:"payment_country_id" json:"payment_country_id,omitempty"`
	PaymentMethodTypeID  *int64            `db:"payment_method_type_id" json:"payment_method_type_id,omitempty"`
	Amount               decimal.Decimal   `db:"amount" json:"amount"`
	Currency             string            `db:"currency" json:"currency"`
	ItemCategory         ItemCategory      `db:"item_category" json:"item_category"`
	PayableItemID        *int64            `db:"payable_item_id" json:"payable_item_id,omitempty"`
	Status               TransactionStatus `db:"status" json:"status"`
	UserProvidedRef      string            `db:"user_provided_reference" json:"user_provided_reference,omitempty"`
	AdminNotes           string            `db:"admin_notes" json:"admin_notes,omitempty"`
	PaymentMethodDetails string            `db:"payment_method_details" json:"payment_method_details,omitempty"`
	Meta                 TransactionMeta   `db:"meta" json:"meta"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

// PaymentMethodDetail is the per-country configuration of a payment method.
type PaymentMethodDetail struct {
	CountryID            int64           `json:"country_id"`
	PaymentMethodID      int64           `json:"payment_method_id"`
	PaymentMethodName    string          `json:"payment_method_name"`
	IsActive             bool            `json:"is_active"`
	UserInstructions     string          `json:"user_instructions"`
	ConfigurationDetails json.RawMessage `json:"configuration_details"`
}

// ReconciliationItem records a paid transaction whose fulfillment could not
// be applied and needs an operator.
type ReconciliationItem struct {
	ID              int64      `db:"id" json:"id"`
	TransactionID   int64      `db:"transaction_id" json:"transaction_id"`
	Reason          string     `db:"reason" json:"reason"`
	Details         string     `db:"details" json:"details"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy      *int64     `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionNotes string     `db:"resolution_notes" json:"resolution_notes,omitempty"`
}

// Reconciliation reasons
const (
	ReconcileMissingPendingSubscription = "missing_pending_subscription"
	ReconcileMissingPackage             = "missing_package"
	ReconcileMissingGiftItem            = "missing_gift_item"
	ReconcileMissingGiftRecipient       = "missing_gift_recipient"
)
