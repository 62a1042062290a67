// Package session holds the authenticated staff session of the terminal.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gamezone/internal/backend"

	"github.com/go-co-op/gocron/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrExpired          = errors.New("session: token expired")
	ErrNoExpiry         = errors.New("session: token has no exp claim")
	ErrNotAuthenticated = errors.New("session: not authenticated")
)

// Logout reasons passed to OnLogout hooks.
const (
	ReasonManual       = "logout"
	ReasonExpired      = "expired"
	ReasonUnauthorized = "unauthorized"
	ReasonReplaced     = "replaced"
)

// Record is the persisted session.
type Record struct {
	Token     string
	Staff     backend.Staff
	ExpiresAt time.Time
}

// Repository persists the session between restarts.
// LoadSession returns nil, nil when nothing is stored.
type Repository interface {
	SaveSession(ctx context.Context, rec Record) error
	LoadSession(ctx context.Context) (*Record, error)
	ClearSession(ctx context.Context) error
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the explicit session context shared by every service.
type Session struct {
	repo   Repository
	sched  gocron.Scheduler
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	rec       *Record
	logoutJob uuid.UUID

	hooksMu  sync.Mutex
	onLogout []func(reason string)
}

// New creates an unauthenticated session. sched may be nil, in which case
// expiry is only enforced by Token.
func New(repo Repository, sched gocron.Scheduler, logger *zerolog.Logger, opts ...Option) *Session {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "session").Logger()
	}
	s := &Session{repo: repo, sched: sched, logger: l, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend verifies tokens; the terminal only needs to know when to log out.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// OnLogout registers a hook run after every logout.
func (s *Session) OnLogout(fn func(reason string)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// Login installs a new token and staff identity. A session already in
// place is logged out first with ReasonReplaced.
func (s *Session) Login(ctx context.Context, token string, staff backend.Staff) error {
	exp, err := TokenExpiry(token)
	if err != nil {
		return err
	}
	if !s.now().Before(exp) {
		return ErrExpired
	}
	s.Logout(ctx, ReasonReplaced)
	rec := Record{Token: token, Staff: staff, ExpiresAt: exp}
	if s.repo != nil {
		if err := s.repo.SaveSession(ctx, rec); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	s.install(rec)
	s.logger.Info().Str("store", staff.Store).Str("staff", staff.Username).Time("expires_at", exp).Msg("staff logged in")
	return nil
}

// Restore loads the persisted session, discarding it when expired.
func (s *Session) Restore(ctx context.Context) error {
	if s.repo == nil {
		return ErrNotAuthenticated
	}
	rec, err := s.repo.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if rec == nil || rec.Token == "" {
		return ErrNotAuthenticated
	}
	if !s.now().Before(rec.ExpiresAt) {
		if err := s.repo.ClearSession(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear expired session")
		}
		return ErrExpired
	}
	s.install(*rec)
	s.logger.Info().Str("store", rec.Staff.Store).Time("expires_at", rec.ExpiresAt).Msg("session restored")
	return nil
}

func (s *Session) install(rec Record) {
	s.mu.Lock()
	s.rec = &rec
	s.scheduleLogoutLocked(rec)
	s.mu.Unlock()
}

func (s *Session) scheduleLogoutLocked(rec Record) {
	if s.sched == nil {
		return
	}
	s.removeJobLocked()
	token := rec.Token
	job, err := s.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(rec.ExpiresAt)),
		gocron.NewTask(func() {
			s.expire(token)
		}),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to schedule auto logout")
		return
	}
	s.logoutJob = job.ID()
}

func (s *Session) removeJobLocked() {
	if s.sched == nil || s.logoutJob == uuid.Nil {
		return
	}
	if err := s.sched.RemoveJob(s.logoutJob); err != nil {
		s.logger.Debug().Err(err).Msg("auto logout job already gone")
	}
	s.logoutJob = uuid.Nil
}

// expire logs out only if token is still the active one.
func (s *Session) expire(token string) {
	s.mu.RLock()
	current := s.rec != nil && s.rec.Token == token
	s.mu.RUnlock()
	if current {
		s.Logout(context.Background(), ReasonExpired)
	}
}

// Logout clears the session and runs the logout hooks once.
func (s *Session) Logout(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.rec == nil {
		s.mu.Unlock()
		return
	}
	staff := s.rec.Staff
	s.rec = nil
	s.removeJobLocked()
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.ClearSession(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("failed to clear stored session")
		}
	}
	s.logger.Info().Str("reason", reason).Str("staff", staff.Username).Msg("staff logged out")

	s.hooksMu.Lock()
	hooks := append([]func(string)(nil), s.onLogout...)
	s.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(reason)
	}
}

// Token returns the bearer token, or "" when logged out or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil || !s.now().Before(s.rec.ExpiresAt) {
		return ""
	}
	return s.rec.Token
}

// Authenticated reports whether a live token is installed.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// StoreID returns the staff member's store, "" when logged out.
func (s *Session) StoreID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return ""
	}
	return s.rec.Staff.Store
}

// Staff returns the logged-in staff member.
func (s *Session) Staff() (backend.Staff, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return backend.Staff{}, false
	}
	return s.rec.Staff, true
}

// ExpiresAt returns the token expiry, zero when logged out.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return time.Time{}
	}
	return s.rec.ExpiresAt
}
