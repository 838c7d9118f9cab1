// Package orphanfinder implements the OrphanFinder collaborator spec.md
// names but leaves unspecified: something that periodically calls
// time_till_orphaned(now) on every tracked subscription and invokes
// reset() on expiry.
package orphanfinder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Target is the slice of Subscription's contract the Finder needs.
type Target interface {
	TimeTillOrphaned(now time.Time) time.Duration
	Reset()
}

// Finder sweeps its registered targets on a fixed interval and resets any
// whose TimeTillOrphaned has reached zero or gone negative.
type Finder struct {
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu      sync.Mutex
	targets map[string]Target
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the Finder's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Finder) { f.logger = logger }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

// New builds a Finder that sweeps every interval.
func New(interval time.Duration, opts ...Option) *Finder {
	f := &Finder{
		interval: interval,
		now:      time.Now,
		targets:  make(map[string]Target),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register begins tracking a subscription under id (its reference id).
func (f *Finder) Register(id string, t Target) {
	f.mu.Lock()
	f.targets[id] = t
	f.mu.Unlock()
}

// Unregister stops tracking id.
func (f *Finder) Unregister(id string) {
	f.mu.Lock()
	delete(f.targets, id)
	f.mu.Unlock()
}

// Run sweeps every interval until ctx is done.
func (f *Finder) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.sweep()
		}
	}
}

// sweep checks every tracked target once. Tests in this package call it
// directly to drive a sweep without waiting on the ticker.
func (f *Finder) sweep() {
	now := f.now()

	f.mu.Lock()
	targets := make(map[string]Target, len(f.targets))
	for id, t := range f.targets {
		targets[id] = t
	}
	f.mu.Unlock()

	for id, t := range targets {
		remaining := t.TimeTillOrphaned(now)
		if remaining <= 0 {
			f.logger.Warn().Str("reference_id", id).Dur("overdue_by", -remaining).Msg("subscription orphaned, resetting")
			t.Reset()
		}
	}
}
