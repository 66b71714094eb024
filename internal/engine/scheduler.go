package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/agreement/internal/ir"
)

// DefaultWorkers bounds concurrent ticks when no worker count is given.
const DefaultWorkers = 4

// Scheduler ticks every pending delay against the manager's clock. Ticks on
// different actions run concurrently, bounded by the worker count.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	workers  int
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that ticks every interval using at most
// workers goroutines. A non-positive workers uses DefaultWorkers.
func NewScheduler(m *Manager, interval time.Duration, workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{manager: m, interval: interval, workers: workers, logger: logger}
}

// TickAll ticks every pending delay once at the current clock reading and
// returns how many executed. A delay that stops being pending between the
// snapshot and its tick is skipped. The first error cancels the remaining
// ticks.
func (s *Scheduler) TickAll(ctx context.Context) (int, error) {
	now := ir.NormalizeTime(s.manager.Now())
	pending := s.manager.PendingDelays()

	var executed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range pending {
		id := id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := s.manager.TickDelay(gctx, id, now)
			if err != nil {
				return err
			}
			if d.State == ir.DelayExecuted && d.EndedAt.Equal(now) {
				executed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(executed.Load()), err
	}
	return int(executed.Load()), nil
}

// TickFunc performs one scheduler pass and reports how many delays executed.
type TickFunc func(ctx context.Context) (int, error)

// Run ticks on every interval until ctx is cancelled. Tick errors are
// logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "workers", s.workers)
	return RunEvery(ctx, s.interval, s.logger, s.TickAll)
}

// RunEvery calls tick on every interval until ctx is cancelled, returning
// nil on cancellation. Tick errors are logged and do not stop the loop.
// Callers that rebuild the manager per pass supply their own tick.
func RunEvery(ctx context.Context, interval time.Duration, logger *slog.Logger, tick TickFunc) error {
	if interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			n, err := tick(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("tick failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info("delays executed", "count", n)
			}
		}
	}
}
