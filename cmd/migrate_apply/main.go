package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dating_platform/internal/logger"
	"dating_platform/internal/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	apply := flag.Bool("apply", false, "apply migrations (default lists them)")
	flag.Parse()

	if !*apply {
		names, err := migrations.Names()
		if err != nil {
			logger.Fatal("list migrations", "error", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Fatal("connect", "error", err)
	}
	defer db.Close()

	err = migrations.Apply(ctx, db, func(name string) {
		fmt.Printf("applied %s\n", name)
	})
	if err != nil {
		logger.Fatal("migration failed", "error", err)
	}
}
