package integration

import (
	"context"
	"os"
	"testing"

	"dating_platform/internal/app"
	"dating_platform/internal/config"
	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/migrations"
	"dating_platform/internal/repository"
	"dating_platform/internal/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type env struct {
	pool *pgxpool.Pool
	conn *db.Pool
	cfg  *config.Config
	svc  *app.Services
}

// setup connects to DATABASE_URL and applies the migrations, skipping the
// test when no database is configured.
func setup(t *testing.T, notifier service.Notifier) *env {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Apply(context.Background(), pool, nil); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	service.SetJWTSecret("integration-secret")
	cfg := &config.Config{
		DefaultCurrency:     "USD",
		MinWithdrawalAmount: decimal.NewFromInt(1),
		APIRateLimit:        1000,
		APIRateWindow:       60,
		PaymentRateLimit:    1000,
		PaymentRateWindow:   60,
	}
	conn := db.NewPool(pool)
	return &env{pool: pool, conn: conn, cfg: cfg, svc: app.NewServices(conn, cfg, notifier, nil)}
}

// user creates a user with a unique email so runs do not collide.
func (e *env) user(t *testing.T, role string) *domain.User {
	t.Helper()
	u := &domain.User{
		Email:    uuid.NewString() + "@integration.test",
		Username: "it-" + uuid.NewString()[:8],
		Role:     role,
	}
	if err := repository.NewUserRepository().Create(context.Background(), e.conn, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *env) credit(t *testing.T, userID int64, amount string) {
	t.Helper()
	ctx := context.Background()
	err := e.conn.WithTx(ctx, func(q db.Querier) error {
		_, err := e.svc.Balance.Credit(ctx, q, userID, decimal.RequireFromString(amount))
		return err
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (e *env) balance(t *testing.T, userID int64) string {
	t.Helper()
	acct, err := e.svc.Balance.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return acct.Balance.StringFixed(2)
}
