package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RedemptionRate is the share of the purchase price returned when a gift
// is redeemed into balance.
var RedemptionRate = decimal.RequireFromString("0.73")

// RoundMoney rounds to cents, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RedemptionValue is the balance credit for redeeming a gift bought at price.
func RedemptionValue(price decimal.Decimal) decimal.Decimal {
	return RoundMoney(price.Mul(RedemptionRate))
}

type BalanceAccount struct {
	UserID    int64           `db:"user_id" json:"user_id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
