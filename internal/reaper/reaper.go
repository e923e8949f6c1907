// Package reaper periodically force-ends sessions that stopped sending
// events without a SessionEnd (crashes, killed terminals, lost hooks).
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/theirongolddev/aimon/internal/store"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = 30 * time.Second

// Reaper sweeps the store for stale active sessions.
type Reaper struct {
	store    *store.Store
	log      *slog.Logger
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

// New returns a reaper that ends sessions idle longer than timeout.
func New(st *store.Store, timeout time.Duration, log *slog.Logger) *Reaper {
	return &Reaper{
		store:    st,
		log:      log,
		timeout:  timeout,
		interval: DefaultInterval,
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. A failed sweep
// is logged and the next tick proceeds normally.
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

// Sweep runs one pass, ending every active session whose last activity
// is older than the stale timeout.
func (r *Reaper) Sweep(ctx context.Context) {
	cutoff := r.now().Add(-r.timeout)
	n, err := r.store.ReapStale(ctx, cutoff)
	if err != nil {
		r.log.Error("stale session sweep failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Info("ended stale sessions", "count", n,
			"stale_timeout", r.timeout.String())
	}
}
