// Package retention prunes old execution records on a cron schedule.
// It wraps robfig/cron for expression parsing only; the loop itself is a
// plain timer driven off Schedule.Next, so nothing runs between due times.

package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codewatch/codewatch/internal/history"
)

// Pruner deletes history records older than MaxAge whenever the schedule
// fires.
type Pruner struct {
	store    *history.Store
	schedule cron.Schedule
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewPruner parses the cron expression (standard 5-field with descriptors
// like "@daily") and creates a pruner. maxAge must be positive.
func NewPruner(store *history.Store, expression string, maxAge time.Duration, logger *slog.Logger) (*Pruner, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive, got %s", maxAge)
	}

	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", expression, err)
	}

	return &Pruner{
		store:    store,
		schedule: schedule,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "retention")),
	}, nil
}

// Run executes the prune loop until ctx is cancelled (blocking).
// This should be run in a goroutine.
func (p *Pruner) Run(ctx context.Context) {
	p.logger.Info("retention pruner started",
		slog.Duration("max_age", p.maxAge),
	)

	for {
		next := p.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("retention pruner stopping")
			return
		case <-timer.C:
			p.prune()
		}
	}
}

// PruneNow runs one prune pass immediately, outside the schedule.
func (p *Pruner) PruneNow() (int, error) {
	return p.store.Prune(time.Now().Add(-p.maxAge))
}

func (p *Pruner) prune() {
	deleted, err := p.PruneNow()
	if err != nil {
		p.logger.Error("retention prune failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if deleted > 0 {
		p.logger.Info("pruned old execution records",
			slog.Int("deleted", deleted),
		)
	} else {
		p.logger.Debug("no records past retention age")
	}
}

// Shutdown gracefully stops the pruner.
// This is a no-op as context cancellation handles shutdown.
func (p *Pruner) Shutdown(ctx context.Context) error {
	return nil
}
