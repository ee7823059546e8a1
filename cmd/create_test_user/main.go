package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/logger"
	"dating_platform/internal/repository"
	"dating_platform/internal/service"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Creates (or reuses) a local user, optionally credits their balance and
// prints a JWT for calling the API by hand.
func main() {
	email := flag.String("email", "tester@example.com", "user email")
	username := flag.String("username", "tester", "username for a new user")
	role := flag.String("role", domain.RoleUser, "role for a new user (user or admin)")
	credit := flag.String("credit", "", "amount to credit to the balance, e.g. 25.00")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()
	conn := db.NewPool(pool)

	users := repository.NewUserRepository()
	ctx := context.Background()

	u, err := users.GetByEmail(ctx, conn, *email)
	if err != nil {
		logger.Fatal("get user failed", "error", err)
	}
	if u != nil {
		logger.Info("user already exists", "id", u.ID, "role", u.Role)
	} else {
		u = &domain.User{
			Email:    *email,
			Username: *username,
			Role:     *role,
			IsActive: true,
		}
		if err := users.Create(ctx, conn, u); err != nil {
			logger.Fatal("create user failed", "error", err)
		}
		logger.Info("user created", "id", u.ID, "role", u.Role)
	}

	if *credit != "" {
		amount, err := decimal.NewFromString(*credit)
		if err != nil {
			logger.Fatal("invalid credit amount", "value", *credit)
		}
		balance := service.NewBalanceService(conn, repository.NewBalanceRepository())
		var newBalance decimal.Decimal
		err = conn.WithTx(ctx, func(q db.Querier) error {
			newBalance, err = balance.Credit(ctx, q, u.ID, amount)
			return err
		})
		if err != nil {
			logger.Fatal("credit failed", "error", err)
		}
		logger.Info("balance credited", "amount", domain.RoundMoney(amount).StringFixed(2), "balance", newBalance.StringFixed(2))
	}

	service.InitJWT()
	token, err := service.GenerateJWT(u.ID)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}
	fmt.Println(token)
}
