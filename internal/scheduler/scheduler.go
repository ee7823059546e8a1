package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dating_platform/internal/logger"

	"github.com/robfig/cron/v3"
)

// Expirer cancels lapsed subscriptions.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

const jobTimeout = 5 * time.Minute

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	expirer  Expirer
	schedule string
	log      *slog.Logger
}

func New(expirer Expirer, schedule string) *Scheduler {
	log := logger.With("component", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		expirer:  expirer,
		schedule: schedule,
		log:      log,
	}
}

// Start registers the jobs and starts the cron loop in the background.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunExpiry); err != nil {
		return fmt.Errorf("schedule subscription expiry %q: %w", s.schedule, err)
	}
	s.log.Info("scheduled subscription expiry job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// RunExpiry is one pass of the subscription expiry job.
func (s *Scheduler) RunExpiry() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.expirer.ExpireDue(ctx)
	if err != nil {
		s.log.Error("subscription expiry failed", "error", err)
		return
	}
	s.log.Info("subscription expiry finished", "expired", n, "duration", time.Since(start))
}

// Stop halts scheduling; the returned context is done once running jobs end.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
