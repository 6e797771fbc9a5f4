// Package reaper runs the idle session sweep (spec §4.4, C4): a
// ticker-driven goroutine that deletes sessions which have gone longer
// than the configured idle timeout without a successful step.
package reaper

import (
	"context"
	"time"

	"github.com/ehrlich-b/gatekeeper/internal/logger"
)

// Registry is the subset of *registry.Registry the reaper depends on,
// segregated so tests can swap in a lightweight fake instead of driving a
// real container runtime.
type Registry interface {
	IdleSessions(maxIdle time.Duration) []string
	Delete(ctx context.Context, id string) error
}

// Reaper periodically evicts idle sessions until its context is canceled.
type Reaper struct {
	registry Registry
	maxIdle  time.Duration
	interval time.Duration
}

// New builds a Reaper. It does not start sweeping until Run is called.
func New(registry Registry, maxIdle, interval time.Duration) *Reaper {
	return &Reaper{registry: registry, maxIdle: maxIdle, interval: interval}
}

// Run blocks, sweeping at the configured interval, until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one eviction pass immediately, independent of the ticker.
// Exported so tests can drive deterministic sweeps without racing a timer.
func (r *Reaper) Sweep(ctx context.Context) {
	for _, id := range r.registry.IdleSessions(r.maxIdle) {
		if err := r.registry.Delete(ctx, id); err != nil {
			logger.Warn("reaper: failed to evict idle session", "session_id", id, "error", err)
			continue
		}
		logger.Info("reaper: evicted idle session", "session_id", id)
	}
}
