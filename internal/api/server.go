// Package api serves the counter terminal's local JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gamezone/internal/backend"
	"gamezone/internal/catalog"
	"gamezone/internal/ledger"
	"gamezone/internal/models"
	"gamezone/internal/orders"
	"gamezone/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Orders is the booking workflow behind the /api/bookings routes.
type Orders interface {
	ListActive(ctx context.Context) ([]models.Booking, error)
	Quote(ctx context.Context, req orders.CreateRequest) (orders.QuoteResult, error)
	CreateBooking(ctx context.Context, req orders.CreateRequest) (*backend.BookingRecord, orders.QuoteResult, error)
	ApplyCoupon(ctx context.Context, code string) (orders.CouponStatus, error)
	ClearCoupon() orders.CouponStatus
	StageExtension(ctx context.Context, id string, minutes int) (orders.PendingExtension, error)
	PendingExtension(id string) (orders.PendingExtension, bool)
	ConfirmExtension(ctx context.Context, id string) (models.Booking, error)
	CancelExtension(id string)
	StageSnacks(ctx context.Context, id string, lines []orders.SnackLine) (orders.PendingSnacks, error)
	PendingSnacks(id string) (orders.PendingSnacks, bool)
	ConfirmSnacks(ctx context.Context, id string) (models.Booking, error)
	CancelSnacks(id string)
	Stop(ctx context.Context, id string) (orders.StopResult, error)
	StopWithLedger(ctx context.Context, id string) (orders.StopResult, error)
	SearchCustomers(ctx context.Context, query string) ([]backend.Customer, error)
	SnackMenu(ctx context.Context) ([]backend.SnackItem, error)
}

// Ledgers is the customer ledger workflow.
type Ledgers interface {
	List(ctx context.Context) ([]ledger.Summary, error)
	Statement(ctx context.Context, id string) (ledger.Statement, error)
	AddEntry(ctx context.Context, id string, req ledger.EntryRequest) (ledger.Statement, error)
}

// Authenticator exchanges staff credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResponse, error)
}

// Session holds the signed-in staff member.
type Session interface {
	Login(ctx context.Context, token string, staff backend.Staff) error
	Logout(ctx context.Context, reason string)
	Authenticated() bool
	Staff() (backend.Staff, bool)
	ExpiresAt() time.Time
}

// Catalogs loads the store catalog.
type Catalogs interface {
	Load(ctx context.Context) (*catalog.Catalog, error)
	Invalidate()
}

// Timers reports countdown state.
type Timers interface {
	Remaining(bookingID string) (int, bool)
	Snapshot() map[string]int
}

// ReadyCheck reports whether a dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Deps are the services behind the API.
type Deps struct {
	Orders   Orders
	Ledgers  Ledgers
	Auth     Authenticator
	Session  Session
	Catalogs Catalogs
	Timers   Timers
	Checks   map[string]ReadyCheck
}

// HTTPServer serves the local API.
type HTTPServer struct {
	deps   Deps
	apiKey string
	logger zerolog.Logger
	server *http.Server
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(addr, apiKey string, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "api").Logger()
	}
	s := &HTTPServer{deps: deps, apiKey: apiKey, logger: l}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	private := http.NewServeMux()
	private.HandleFunc("POST /api/logout", s.handleLogout)
	private.HandleFunc("GET /api/session", s.handleSession)
	private.HandleFunc("GET /api/catalog", s.handleCatalog)
	private.HandleFunc("GET /api/bookings", s.handleListBookings)
	private.HandleFunc("POST /api/bookings/quote", s.handleQuote)
	private.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	private.HandleFunc("POST /api/coupon", s.handleApplyCoupon)
	private.HandleFunc("DELETE /api/coupon", s.handleClearCoupon)
	private.HandleFunc("POST /api/bookings/{id}/extension", s.handleStageExtension)
	private.HandleFunc("POST /api/bookings/{id}/extension/confirm", s.handleConfirmExtension)
	private.HandleFunc("DELETE /api/bookings/{id}/extension", s.handleCancelExtension)
	private.HandleFunc("POST /api/bookings/{id}/snacks", s.handleStageSnacks)
	private.HandleFunc("POST /api/bookings/{id}/snacks/confirm", s.handleConfirmSnacks)
	private.HandleFunc("DELETE /api/bookings/{id}/snacks", s.handleCancelSnacks)
	private.HandleFunc("POST /api/bookings/{id}/stop", s.handleStop)
	private.HandleFunc("GET /api/customers/search", s.handleSearchCustomers)
	private.HandleFunc("GET /api/snacks", s.handleSnacks)
	private.HandleFunc("GET /api/ledgers", s.handleLedgers)
	private.HandleFunc("GET /api/ledgers/{id}/statement", s.handleStatement)
	private.HandleFunc("GET /api/ledgers/{id}/statement.xlsx", s.handleStatementXLSX)
	private.HandleFunc("POST /api/ledgers/{id}/entries", s.handleAddEntry)
	mux.Handle("/api/", s.requireSession(private))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.withRequestID(s.withAPIKey(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		logger := s.logger.With().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *HTTPServer) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.URL.Path != "/healthz" && r.URL.Path != "/readyz" && r.Header.Get("x-api-key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Session.Authenticated() {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body, rejecting unknown fields. An empty body leaves v untouched.
func decode(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// fail maps a service error to a status and logs server-side failures.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		validation *orders.ValidationError
		coupon     *orders.CouponError
	)
	switch {
	case errors.Is(err, backend.ErrUnauthorized),
		errors.Is(err, catalog.ErrNoStore),
		errors.Is(err, session.ErrExpired),
		errors.Is(err, session.ErrNoExpiry),
		errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, orders.ErrBookingNotFound), errors.Is(err, ledger.ErrLedgerNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrScreenOccupied),
		errors.Is(err, orders.ErrCouponInFlight),
		errors.Is(err, orders.ErrCouponAlreadyApplied),
		errors.Is(err, orders.ErrNoPendingExtension),
		errors.Is(err, orders.ErrExtensionChanged),
		errors.Is(err, orders.ErrNoPendingSnacks):
		return http.StatusConflict
	case errors.As(err, &validation),
		errors.As(err, &coupon),
		errors.Is(err, orders.ErrInvalidExtension),
		errors.Is(err, orders.ErrCafeDisabled),
		errors.Is(err, orders.ErrEmptySnacks),
		errors.Is(err, orders.ErrMissingPhone),
		errors.Is(err, orders.ErrScreenNotPermitted),
		errors.Is(err, orders.ErrTooManyPlayers),
		errors.Is(err, orders.ErrInvalidDuration),
		errors.Is(err, orders.ErrCouponCodeRequired),
		errors.Is(err, ledger.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
