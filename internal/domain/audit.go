package domain

import "time"

// AuditLog represents an audit log entry for tracking money-moving actions
type AuditLog struct {
	ID        int64                  `db:"id" json:"id"`
	UserID    int64                  `db:"user_id" json:"user_id"`
	ActorID   int64                  `db:"actor_id" json:"actor_id"`
	Action    string                 `db:"action" json:"action"`
	Category  string                 `db:"category" json:"category"`
	Details   map[string]interface{} `db:"details" json:"details"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Audit action categories
const (
	AuditCategoryBalance      = "balance"
	AuditCategoryWithdrawal   = "withdrawal"
	AuditCategoryGift         = "gift"
	AuditCategorySubscription = "subscription"
	AuditCategoryTransaction  = "transaction"
	AuditCategoryAdmin        = "admin"
)

// IsAuditCategory reports whether c is one of the categories above.
func IsAuditCategory(c string) bool {
	switch c {
	case AuditCategoryBalance, AuditCategoryWithdrawal, AuditCategoryGift,
		AuditCategorySubscription, AuditCategoryTransaction, AuditCategoryAdmin:
		return true
	}
	return false
}

// Audit actions
const (
	AuditActionWithdrawRequest = "withdraw_request"
	AuditActionWithdrawStatus  = "withdraw_status"

	AuditActionGiftSend   = "gift_send"
	AuditActionGiftRedeem = "gift_redeem"

	AuditActionSubscriptionPurchase = "subscription_purchase"
	AuditActionSubscriptionCancel   = "subscription_cancel"
	AuditActionSubscriptionExpire   = "subscription_expire"

	AuditActionTransactionInitiate  = "transaction_initiate"
	AuditActionTransactionReference = "transaction_reference"
	AuditActionTransactionVerify    = "transaction_verify"

	AuditActionReconciliationResolve = "reconciliation_resolve"
)
