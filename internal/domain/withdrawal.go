package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents withdrawal processing status
type WithdrawalStatus string

const (
	WithdrawalStatusPending   WithdrawalStatus = "pending"
	WithdrawalStatusApproved  WithdrawalStatus = "approved"
	WithdrawalStatusDeclined  WithdrawalStatus = "declined"
	WithdrawalStatusProcessed WithdrawalStatus = "processed"
)

func ParseWithdrawalStatus(s string) (WithdrawalStatus, bool) {
	switch st := WithdrawalStatus(s); st {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusDeclined, WithdrawalStatusProcessed:
		return st, true
	}
	return "", false
}

var withdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:  {WithdrawalStatusApproved, WithdrawalStatusDeclined},
	WithdrawalStatusApproved: {WithdrawalStatusProcessed, WithdrawalStatusDeclined},
}

// CanTransitionTo reports whether an admin may move a request from s to next.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	for _, allowed := range withdrawalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WithdrawalRequest is a cash-out of site balance. The amount leaves the
// ledger when the request is created and returns only on decline.
type WithdrawalRequest struct {
	ID                 int64            `db:"id" json:"id"`
	UserID             int64            `db:"user_id" json:"user_id"`
	Amount             decimal.Decimal  `db:"amount" json:"amount"`
	UserPaymentDetails string           `db:"user_payment_details" json:"user_payment_details"`
	Status             WithdrawalStatus `db:"status" json:"status"`
	AdminNotes         string           `db:"admin_notes" json:"admin_notes,omitempty"`
	ProcessedBy        *int64           `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt        *time.Time       `db:"processed_at" json:"processed_at,omitempty"`
	RequestedAt        time.Time        `db:"requested_at" json:"requested_at"`
}
