package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"dating_platform/internal/app"
	"dating_platform/internal/config"
	"dating_platform/internal/db"
	"dating_platform/internal/events"
	"dating_platform/internal/logger"
	"dating_platform/internal/scheduler"
)

// Runs the subscription expiry sweep on EXPIRY_JOB_SCHEDULE. With -once it
// runs a single pass and exits, for use from an external cron.
func main() {
	once := flag.Bool("once", false, "run one expiry pass and exit")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	publisher := events.New(cfg.AMQPURL)
	defer publisher.Close()

	svc := app.NewServices(db.NewPool(dbPool), cfg, nil, publisher)
	s := scheduler.New(svc.Subscriptions, cfg.ExpiryJobSchedule)

	if *once {
		s.RunExpiry()
		return
	}

	if err := s.Start(); err != nil {
		logger.Fatal("scheduler start failed", "error", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("stopping scheduler...")
	<-s.Stop().Done()
	logger.Info("scheduler exited")
}
