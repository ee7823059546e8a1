package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransactionsVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transactions_verified_total",
			Help: "Transactions moved to a terminal status by an admin",
		},
		[]string{"status", "category"},
	)
	ReconciliationItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_items_total",
			Help: "Paid transactions whose fulfillment needs manual reconciliation",
		},
		[]string{"reason"},
	)
	GiftsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifts_sent_total",
			Help: "Gifts delivered, by payment source",
		},
		[]string{"source"},
	)
	GiftsRedeemed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gifts_redeemed_total",
			Help: "Gifts converted back into balance",
		},
	)
	WithdrawalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_transitions_total",
			Help: "Withdrawal requests created or moved to a new status",
		},
		[]string{"status"},
	)
	SubscriptionsActivated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriptions_activated_total",
			Help: "Subscriptions activated, by tier",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(TransactionsVerified)
	prometheus.MustRegister(ReconciliationItems)
	prometheus.MustRegister(GiftsSent)
	prometheus.MustRegister(GiftsRedeemed)
	prometheus.MustRegister(WithdrawalTransitions)
	prometheus.MustRegister(SubscriptionsActivated)
}
