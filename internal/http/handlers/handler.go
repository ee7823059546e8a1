package handlers

import (
	"context"
	"net/http"
	"strconv"

	"dating_platform/internal/domain"
	"dating_platform/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type BalanceAPI interface {
	GetBalance(ctx context.Context, userID int64) (*domain.BalanceAccount, error)
}

type WithdrawalAPI interface {
	CreateRequest(ctx context.Context, userID int64, amount decimal.Decimal, paymentDetails string) (*domain.WithdrawalRequest, decimal.Decimal, error)
	UpdateStatus(ctx context.Context, requestID int64, newStatus domain.WithdrawalStatus, adminID int64, notes string) (*domain.WithdrawalRequest, error)
	ListForUser(ctx context.Context, userID int64, limit int) ([]domain.WithdrawalRequest, error)
	List(ctx context.Context, status domain.WithdrawalStatus, limit, offset int) ([]domain.WithdrawalRequest, error)
}

type SubscriptionAPI interface {
	ListPackages(ctx context.Context) ([]domain.SubscriptionPackage, error)
	ListAllPackages(ctx context.Context) ([]domain.SubscriptionPackage, error)
	GetPackage(ctx context.Context, id int64) (*domain.SubscriptionPackage, error)
	CreatePackage(ctx context.Context, adminID int64, in service.PackageInput) (*domain.SubscriptionPackage, error)
	UpdatePackage(ctx context.Context, adminID, id int64, in service.PackageInput) (*domain.SubscriptionPackage, error)
	GetActive(ctx context.Context, userID int64) (*domain.UserSubscription, error)
	HasFeature(ctx context.Context, userID int64, name string) (bool, error)
	PurchaseWithBalance(ctx context.Context, userID, packageID int64) (*service.PurchaseResult, error)
	Cancel(ctx context.Context, subscriptionID, actorID int64, actorIsAdmin bool) (*domain.UserSubscription, error)
}

type GiftAPI interface {
	ListItems(ctx context.Context) ([]domain.GiftItem, error)
	ListAllItems(ctx context.Context) ([]domain.GiftItem, error)
	GetItem(ctx context.Context, id int64) (*domain.GiftItem, error)
	CreateItem(ctx context.Context, adminID int64, in service.GiftItemInput) (*domain.GiftItem, error)
	UpdateItem(ctx context.Context, adminID, id int64, in service.GiftItemInput) (*domain.GiftItem, error)
	Send(ctx context.Context, senderID int64, in service.SendGiftInput) (*service.SendGiftResult, error)
	Redeem(ctx context.Context, recipientID, giftID int64) (*service.RedeemResult, error)
	ListReceived(ctx context.Context, userID int64, limit, offset int) ([]domain.UserGift, error)
	ListSent(ctx context.Context, userID int64, limit, offset int) ([]domain.UserGift, error)
	MarkRead(ctx context.Context, userID, giftID int64) error
	UnreadCount(ctx context.Context, userID int64) (int, error)
}

type TransactionAPI interface {
	Initiate(ctx context.Context, userID int64, in service.InitiateInput) (*service.InitiateResult, error)
	SubmitReference(ctx context.Context, userID, transactionID int64, reference string) (*domain.Transaction, error)
	Get(ctx context.Context, userID, transactionID int64) (*domain.Transaction, error)
	ListForUser(ctx context.Context, userID int64, limit, offset int) (*service.Page[domain.Transaction], error)
	ListPendingVerification(ctx context.Context, limit, offset int) (*service.Page[domain.Transaction], error)
	Verify(ctx context.Context, adminID, transactionID int64, status domain.TransactionStatus, notes string) (*service.VerifyResult, error)
	ListReconciliation(ctx context.Context, includeResolved bool, limit, offset int) ([]domain.ReconciliationItem, error)
	ResolveReconciliation(ctx context.Context, adminID, id int64, notes string) (*domain.ReconciliationItem, error)
}

type AuditAPI interface {
	ListLogs(ctx context.Context, userID int64, category string, limit int) ([]*domain.AuditLog, error)
}

type Handler struct {
	Balance       BalanceAPI
	Withdrawals   WithdrawalAPI
	Subscriptions SubscriptionAPI
	Gifts         GiftAPI
	Transactions  TransactionAPI
	Audit         AuditAPI
}

// getUserID извлекает user_id из контекста Gin
func getUserID(c *gin.Context) (int64, bool) {
	uidVal, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	switch v := uidVal.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == domain.RoleAdmin
}

// requireUser writes 401 and returns false when the auth middleware did not run.
func requireUser(c *gin.Context) (int64, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
		return 0, false
	}
	return userID, true
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "code": "invalid_request"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func invalidRequest(c *gin.Context, err error) {
	msg := "invalid request"
	if err != nil {
		msg += ": " + err.Error()
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "invalid_request"})
}

func money(d decimal.Decimal) string {
	return domain.RoundMoney(d).StringFixed(2)
}
