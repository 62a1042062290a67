package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hooks receive countdown notifications. Nil hooks are skipped.
// Hooks must not call back into the Board.
type Hooks struct {
	OnTick    func(bookingID string, remaining int)
	OnLowTime func(bookingID string)
	OnExpired func(bookingID string)
}

// Countdown is the running timer of a single booking.
type Countdown struct {
	id       string
	store    Store
	hooks    Hooks
	now      func() time.Time
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	state     State
	remaining int
	alerted   bool
	stopped   bool

	parent  context.Context
	cancel  context.CancelFunc
	running bool
}

type notification struct {
	low     bool
	expired bool
	tick    bool
	value   int
}

func newCountdown(id string, store Store, hooks Hooks, now func() time.Time, interval time.Duration, logger zerolog.Logger) *Countdown {
	return &Countdown{
		id:       id,
		store:    store,
		hooks:    hooks,
		now:      now,
		interval: interval,
		logger:   logger.With().Str("booking_id", id).Logger(),
	}
}

// Mount loads or seeds the persisted state and derives the remaining time
// from the wall clock.
func (c *Countdown) Mount(ctx context.Context, baseMinutes, extensionTotal int) error {
	c.mu.Lock()
	st, err := c.store.Get(ctx, c.id)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("load timer %s: %w", c.id, err)
	}

	now := c.now()
	if st == nil || st.BaseMinutes != baseMinutes {
		c.resetLocked(baseMinutes, now)
	} else {
		c.state = *st
		c.remaining = st.RemainingAt(now)
	}
	c.alerted = false
	c.stopped = false
	c.applyExtensionLocked(extensionTotal)
	n := c.settleLocked(ctx)
	c.mu.Unlock()

	c.fire(n)
	return nil
}

// Sync reconciles the countdown with a refreshed booking record.
func (c *Countdown) Sync(ctx context.Context, baseMinutes, extensionTotal int) {
	c.mu.Lock()
	before := c.remaining
	if baseMinutes != c.state.BaseMinutes {
		c.resetLocked(baseMinutes, c.now())
		c.alerted = false
		c.stopped = false
	}
	c.applyExtensionLocked(extensionTotal)
	if c.remaining == before {
		c.mu.Unlock()
		return
	}
	n := c.settleLocked(ctx)
	c.startLocked()
	c.mu.Unlock()

	c.fire(n)
}

// ApplyExtension adds any extension beyond what was already applied.
func (c *Countdown) ApplyExtension(ctx context.Context, extensionTotal int) {
	c.mu.Lock()
	if !c.applyExtensionLocked(extensionTotal) {
		c.mu.Unlock()
		return
	}
	n := c.settleLocked(ctx)
	c.startLocked()
	c.mu.Unlock()

	c.fire(n)
}

// Tick decrements the countdown by one second. It reports whether the
// countdown is still running.
func (c *Countdown) Tick(ctx context.Context) bool {
	c.mu.Lock()
	if c.stopped || c.remaining <= 0 {
		c.mu.Unlock()
		return false
	}
	c.remaining--
	n := c.settleLocked(ctx)
	n.tick = true
	c.mu.Unlock()

	c.fire(n)
	return !n.expired
}

// Remaining returns the current remaining seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stopped reports whether the countdown reached zero.
func (c *Countdown) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// State returns a copy of the current state.
func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.RemainingSeconds = c.remaining
	return st
}

// Start ticks once per interval until ctx is done or the countdown ends.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parent = ctx
	c.startLocked()
}

// Stop cancels ticking and keeps the persisted state.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Clear cancels ticking and deletes the persisted state.
func (c *Countdown) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.stopped = true
	return c.store.Delete(ctx, c.id)
}

func (c *Countdown) resetLocked(baseMinutes int, now time.Time) {
	c.state = State{
		BookingID:   c.id,
		StartedAt:   now,
		BaseMinutes: baseMinutes,
	}
	c.remaining = baseMinutes * 60
}

func (c *Countdown) applyExtensionLocked(total int) bool {
	delta := total - c.state.AppliedExtensionMinutes
	if delta <= 0 {
		return false
	}
	c.remaining += delta * 60
	c.state.AppliedExtensionMinutes = total
	if c.remaining > LowTimeSeconds {
		c.alerted = false
	}
	c.stopped = false
	return true
}

// settleLocked persists the state and decides which hooks fire.
func (c *Countdown) settleLocked(ctx context.Context) notification {
	n := notification{value: c.remaining}
	if c.remaining == LowTimeSeconds && !c.alerted {
		c.alerted = true
		n.low = true
	}
	if c.remaining <= 0 {
		c.remaining = 0
		c.stopped = true
		n.expired = true
		if err := c.store.Delete(ctx, c.id); err != nil {
			c.logger.Warn().Err(err).Msg("failed to clear timer state")
		}
		// the loop's own context is cancelled here, so delete first
		c.stopLocked()
		return n
	}

	c.state.RemainingSeconds = c.remaining
	c.state.UpdatedAt = c.now()
	if err := c.store.Put(ctx, c.state); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist timer state")
	}
	return n
}

func (c *Countdown) startLocked() {
	if c.running || c.stopped || c.parent == nil || c.parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.running = true
	go c.loop(ctx)
}

func (c *Countdown) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
}

func (c *Countdown) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.Tick(ctx) {
				return
			}
		}
	}
}

func (c *Countdown) fire(n notification) {
	if n.tick && c.hooks.OnTick != nil {
		c.hooks.OnTick(c.id, n.value)
	}
	if n.low && c.hooks.OnLowTime != nil {
		c.hooks.OnLowTime(c.id)
	}
	if n.expired && c.hooks.OnExpired != nil {
		c.hooks.OnExpired(c.id)
	}
}
