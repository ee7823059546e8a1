package http

import (
	"time"

	"dating_platform/internal/config"
	"dating_platform/internal/http/handlers"
	"dating_platform/internal/http/middleware"
	"dating_platform/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router needs, built in cmd/app.
type Deps struct {
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Users   middleware.UserLookup
	Limiter *middleware.RateLimiter
	Hub     *ws.Hub
}

func RegisterRoutes(r *gin.Engine, d Deps, cfg *config.Config) {
	h := d.Handler

	r.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", d.Health.Health)
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", ws.HandleWS(d.Hub, cfg.AllowedOrigin))

	apiWindow := time.Duration(cfg.APIRateWindow) * time.Second
	payWindow := time.Duration(cfg.PaymentRateWindow) * time.Second
	payRL := d.Limiter.PerUser("payment", cfg.PaymentRateLimit, payWindow)

	v1 := r.Group("/api/v1")
	v1.Use(d.Limiter.PerIP(cfg.APIRateLimit, apiWindow), middleware.Auth(d.Users))

	balance := v1.Group("/balance")
	{
		balance.GET("", h.GetBalance)
		balance.POST("/withdrawals", payRL, h.RequestWithdrawal)
		balance.GET("/withdrawals", h.MyWithdrawals)
	}

	txs := v1.Group("/transactions")
	{
		txs.POST("/initiate", payRL, h.InitiateTransaction)
		txs.POST("/:id/submit-reference", payRL, h.SubmitReference)
		txs.GET("/:id", h.GetTransaction)
		txs.GET("", h.MyTransactions)
	}

	subs := v1.Group("/subscriptions")
	{
		subs.GET("/packages", h.ListPackages)
		subs.GET("/packages/:id", h.GetPackage)
		subs.GET("/me", h.MySubscription)
		subs.POST("/purchase-with-balance", payRL, h.PurchaseWithBalance)
		subs.POST("/:id/cancel", h.CancelSubscription)
		subs.GET("/features/:name", h.FeatureAccess)
	}

	gifts := v1.Group("/gifts")
	{
		gifts.GET("/items", h.ListGiftItems)
		gifts.GET("/items/:id", h.GetGiftItem)
		gifts.POST("/send", payRL, h.SendGift)
		gifts.GET("/received", h.ReceivedGifts)
		gifts.GET("/sent", h.SentGifts)
		gifts.GET("/unread-count", h.UnreadGiftCount)
		gifts.PUT("/:id/read", h.MarkGiftRead)
		gifts.POST("/:id/redeem", payRL, h.RedeemGift)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/transactions/pending", h.PendingTransactions)
		admin.POST("/transactions/:id/verify", h.VerifyTransaction)

		admin.GET("/withdrawals", h.ListWithdrawals)
		admin.PUT("/withdrawals/:id/status", h.UpdateWithdrawalStatus)

		admin.GET("/subscriptions/packages", h.AllPackages)
		admin.POST("/subscriptions/packages", h.CreatePackage)
		admin.PUT("/subscriptions/packages/:id", h.UpdatePackage)

		admin.GET("/gifts/items", h.AllGiftItems)
		admin.POST("/gifts/items", h.CreateGiftItem)
		admin.PUT("/gifts/items/:id", h.UpdateGiftItem)

		admin.GET("/reconciliation", h.ListReconciliation)
		admin.POST("/reconciliation/:id/resolve", h.ResolveReconciliation)

		admin.GET("/audit-logs", h.ListAuditLogs)
	}
}
