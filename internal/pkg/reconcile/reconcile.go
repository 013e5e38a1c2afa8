package reconcile

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/cache"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/env"
	"github.com/opslagbijjou-creator/bookbeauty-api/internal/pkg/payments"
)

const (
	// sweepLockKey elects one instance per sweep run.
	sweepLockKey  = "payments:reconcile:lock"
	sweepLockTTL  = 4 * time.Minute
	sweepBatchMax = 100
)

// Sweeper periodically re-syncs pending payments that never received their
// terminal webhook.
type Sweeper struct {
	service  *payments.Service
	cron     *cron.Cron
	staleAge time.Duration
}

// NewSweeper builds the sweeper. RECONCILE_STALE_MINUTES controls how old a
// pending payment must be before the sweep touches it (default 15).
func NewSweeper(service *payments.Service) *Sweeper {
	staleMin := 15
	if raw := env.GetEnv("RECONCILE_STALE_MINUTES", ""); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			staleMin = v
		}
	}
	return &Sweeper{
		service:  service,
		cron:     cron.New(),
		staleAge: time.Duration(staleMin) * time.Minute,
	}
}

// Start schedules the sweep every five minutes. Returns immediately; the
// cron scheduler runs on its own goroutine until Stop.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("*/5 * * * *", s.runOnce)
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("reconcile: payment sweep scheduled every 5 minutes, stale age %s", s.staleAge)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) runOnce() {
	// One instance sweeps at a time across the deployment.
	if !cache.AcquireLock(sweepLockKey, sweepLockTTL) {
		return
	}
	defer cache.ReleaseLock(sweepLockKey)

	ctx, cancel := context.WithTimeout(context.Background(), sweepLockTTL)
	defer cancel()

	if _, err := s.service.ReconcileStalePayments(ctx, time.Now().Add(-s.staleAge), sweepBatchMax); err != nil {
		log.Printf("reconcile: sweep failed: %v", err)
	}
}
