package timer

import (
	"context"
	"sync"
	"time"

	"gamezone/internal/metrics"

	"github.com/rs/zerolog"
)

// Spec describes the countdown a booking needs.
type Spec struct {
	BookingID        string
	BaseMinutes      int
	ExtensionMinutes int
}

// Option configures a Board.
type Option func(*Board)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.now = now }
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(b *Board) {
		if d > 0 {
			b.interval = d
		}
	}
}

// Board owns the countdowns of all visible bookings.
type Board struct {
	store    Store
	hooks    Hooks
	now      func() time.Time
	interval time.Duration
	logger   zerolog.Logger

	mu         sync.Mutex
	parent     context.Context
	countdowns map[string]*Countdown
}

// NewBoard creates a board backed by store.
func NewBoard(store Store, hooks Hooks, logger *zerolog.Logger, opts ...Option) *Board {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "timer").Logger()
	}
	b := &Board{
		store:      store,
		hooks:      hooks,
		now:        time.Now,
		interval:   time.Second,
		logger:     l,
		countdowns: make(map[string]*Countdown),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start makes mounted countdowns tick until ctx is done.
func (b *Board) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = ctx
	for _, c := range b.countdowns {
		c.Start(ctx)
	}
}

// Mount mounts or syncs the countdown of a booking and returns its remaining seconds.
func (b *Board) Mount(ctx context.Context, spec Spec) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mountLocked(ctx, spec)
}

func (b *Board) mountLocked(ctx context.Context, spec Spec) (int, error) {
	if c, ok := b.countdowns[spec.BookingID]; ok {
		c.Sync(ctx, spec.BaseMinutes, spec.ExtensionMinutes)
		return c.Remaining(), nil
	}
	c := newCountdown(spec.BookingID, b.store, b.hooks, b.now, b.interval, b.logger)
	if err := c.Mount(ctx, spec.BaseMinutes, spec.ExtensionMinutes); err != nil {
		return 0, err
	}
	b.countdowns[spec.BookingID] = c
	if b.parent != nil {
		c.Start(b.parent)
	}
	metrics.SetActiveTimers(len(b.countdowns))
	return c.Remaining(), nil
}

// Sync mounts the given bookings and unmounts every other countdown.
func (b *Board) Sync(ctx context.Context, specs []Spec) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{}, len(specs))
	var firstErr error
	for _, spec := range specs {
		seen[spec.BookingID] = struct{}{}
		if _, err := b.mountLocked(ctx, spec); err != nil {
			b.logger.Error().Err(err).Str("booking_id", spec.BookingID).Msg("mount timer failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for id, c := range b.countdowns {
		if _, ok := seen[id]; !ok {
			c.Stop()
			delete(b.countdowns, id)
		}
	}
	metrics.SetActiveTimers(len(b.countdowns))
	return firstErr
}

// ApplyExtension pushes a new cumulative extension to a mounted countdown.
func (b *Board) ApplyExtension(ctx context.Context, bookingID string, extensionTotal int) {
	b.mu.Lock()
	c, ok := b.countdowns[bookingID]
	b.mu.Unlock()
	if ok {
		c.ApplyExtension(ctx, extensionTotal)
	}
}

// Clear unmounts a booking and deletes its persisted state.
func (b *Board) Clear(ctx context.Context, bookingID string) error {
	b.mu.Lock()
	c, ok := b.countdowns[bookingID]
	delete(b.countdowns, bookingID)
	metrics.SetActiveTimers(len(b.countdowns))
	b.mu.Unlock()

	if ok {
		return c.Clear(ctx)
	}
	return b.store.Delete(ctx, bookingID)
}

// Remaining returns the remaining seconds of a mounted booking.
func (b *Board) Remaining(bookingID string) (int, bool) {
	b.mu.Lock()
	c, ok := b.countdowns[bookingID]
	b.mu.Unlock()
	if !ok {
		return 0, false
	}
	return c.Remaining(), true
}

// Snapshot returns remaining seconds per mounted booking.
func (b *Board) Snapshot() map[string]int {
	b.mu.Lock()
	list := make(map[string]*Countdown, len(b.countdowns))
	for id, c := range b.countdowns {
		list[id] = c
	}
	b.mu.Unlock()

	out := make(map[string]int, len(list))
	for id, c := range list {
		out[id] = c.Remaining()
	}
	return out
}

// Close stops all countdowns and forgets them. Persisted state is kept.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, c := range b.countdowns {
		c.Stop()
		delete(b.countdowns, id)
	}
	metrics.SetActiveTimers(0)
}
