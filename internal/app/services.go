// Package app assembles repositories and services for the binaries in cmd.
package app

import (
	"dating_platform/internal/config"
	"dating_platform/internal/db"
	"dating_platform/internal/http/handlers"
	"dating_platform/internal/repository"
	"dating_platform/internal/service"
)

type Services struct {
	Users         *service.UserService
	Audit         *service.AuditService
	Balance       *service.BalanceService
	Withdrawals   *service.WithdrawalService
	Subscriptions *service.SubscriptionService
	Gifts         *service.GiftService
	Transactions  *service.TransactionService
}

// NewServices builds the service graph over conn. notifier and events may
// be nil.
func NewServices(conn db.Conn, cfg *config.Config, notifier service.Notifier, events service.EventPublisher) *Services {
	users := repository.NewUserRepository()
	txs := repository.NewTransactionRepository()

	audit := service.NewAuditService(conn, repository.NewAuditRepository())
	balance := service.NewBalanceService(conn, repository.NewBalanceRepository())
	subs := service.NewSubscriptionService(conn, repository.NewSubscriptionRepository(), users, txs,
		balance, audit, notifier, cfg.DefaultCurrency)
	gifts := service.NewGiftService(conn, repository.NewGiftRepository(), users, subs, balance,
		txs, audit, notifier, cfg.DefaultCurrency)
	transactions := service.NewTransactionService(conn, txs, repository.NewPaymentMethodRepository(),
		repository.NewReconciliationRepository(), subs, gifts, balance, audit, notifier, events, cfg.DefaultCurrency)
	withdrawals := service.NewWithdrawalService(conn, repository.NewWithdrawalRepository(), balance, audit,
		notifier, cfg.MinWithdrawalAmount)

	return &Services{
		Users:         service.NewUserService(conn, users),
		Audit:         audit,
		Balance:       balance,
		Withdrawals:   withdrawals,
		Subscriptions: subs,
		Gifts:         gifts,
		Transactions:  transactions,
	}
}

// Handler exposes the services to the HTTP layer.
func (s *Services) Handler() *handlers.Handler {
	return &handlers.Handler{
		Balance:       s.Balance,
		Withdrawals:   s.Withdrawals,
		Subscriptions: s.Subscriptions,
		Gifts:         s.Gifts,
		Transactions:  s.Transactions,
		Audit:         s.Audit,
	}
}
