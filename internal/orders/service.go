// Package orders reconciles the active booking list with the backend and
// implements extension, snack, stop and booking creation flows.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gamezone/internal/backend"
	"gamezone/internal/catalog"
	"gamezone/internal/events"
	"gamezone/internal/models"
	"gamezone/internal/pricing"
	"gamezone/internal/timer"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	ErrBookingNotFound    = errors.New("booking not found")
	ErrInvalidExtension   = errors.New("extension must be a positive multiple of 30 minutes")
	ErrNoPendingExtension = errors.New("no pending extension for this booking")
	ErrNoPendingSnacks    = errors.New("no pending snacks for this booking")
	ErrCafeDisabled       = errors.New("cafe is not enabled for this store")
	ErrEmptySnacks        = errors.New("no snacks selected")
	ErrMissingPhone       = errors.New("booking has no phone number for the ledger")
	ErrExtensionChanged   = errors.New("booking was extended elsewhere, extension re-priced")
)

// Backend is the subset of the backend API used by the service.
type Backend interface {
	ActiveScreens(ctx context.Context) ([]string, error)
	ActiveBookings(ctx context.Context, screens []string) ([]backend.BookingRecord, error)
	CreateBooking(ctx context.Context, req backend.CreateBookingRequest) (*backend.BookingRecord, error)
	UpdateBooking(ctx context.Context, id string, upd backend.BookingUpdate) error
	SetBookingStatus(ctx context.Context, id, status string) error
	LogActivity(ctx context.Context, event backend.ActivityEvent) error
	TodayDiscount(ctx context.Context, storeID string) (*backend.DailyDiscount, error)
	GetCoupon(ctx context.Context, code string) (*backend.Coupon, error)
	MarkCouponUsed(ctx context.Context, code string) error
	SearchCustomers(ctx context.Context, query string) ([]backend.Customer, error)
	SnacksAndDrinks(ctx context.Context, storeID string) ([]backend.SnackItem, error)
	RecordGamezoneOrder(ctx context.Context, order backend.GamezoneOrder) error
	AddLedgerTransaction(ctx context.Context, phone string, entry backend.LedgerEntry) error
}

// CatalogLoader returns the catalog of the current store.
type CatalogLoader interface {
	Load(ctx context.Context) (*catalog.Catalog, error)
}

// Identity exposes the signed-in staff member.
type Identity interface {
	StoreID() string
	Staff() (backend.Staff, bool)
}

// Timers drives the per-booking countdowns.
type Timers interface {
	Sync(ctx context.Context, specs []timer.Spec) error
	ApplyExtension(ctx context.Context, bookingID string, extensionTotal int)
	Clear(ctx context.Context, bookingID string) error
	Remaining(bookingID string) (int, bool)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventBus publishes booking events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// Service owns the in-memory view of active bookings.
type Service struct {
	api      Backend
	catalogs CatalogLoader
	identity Identity
	timers   Timers
	policy   pricing.Policy
	bus      *events.EventBus
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time

	coupon *CouponFlow

	mu            sync.Mutex
	generation    uint64
	bookings      map[string]models.Booking
	pendingExt    map[string]PendingExtension
	pendingSnacks map[string]PendingSnacks
	debited       map[string]float64
}

// NewService wires the service.
func NewService(api Backend, catalogs CatalogLoader, identity Identity, timers Timers, policy pricing.Policy, logger *zerolog.Logger, opts ...Option) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "orders").Logger()
	}
	s := &Service{
		api:           api,
		catalogs:      catalogs,
		identity:      identity,
		timers:        timers,
		policy:        policy,
		validate:      validator.New(),
		logger:        l,
		now:           time.Now,
		coupon:        NewCouponFlow(),
		bookings:      make(map[string]models.Booking),
		pendingExt:    make(map[string]PendingExtension),
		pendingSnacks: make(map[string]PendingSnacks),
		debited:       make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListActive fetches the active bookings of the store's screens and
// reconciles the local list and the timers with them. A response overtaken
// by a newer refresh or by a local change is dropped and the local list is
// returned instead.
func (s *Service) ListActive(ctx context.Context) ([]models.Booking, error) {
	cat, err := s.catalogs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	var records []backend.BookingRecord
	if screens := cat.Screens(); len(screens) > 0 {
		records, err = s.api.ActiveBookings(ctx, screens)
		if err != nil {
			return nil, fmt.Errorf("fetch active bookings: %w", err)
		}
	}

	list := make([]models.Booking, 0, len(records))
	for _, r := range records {
		if !cat.Permits(r.Screen) {
			s.logger.Debug().Str("booking_id", r.ID).Str("screen", r.Screen).Msg("dropping booking of a foreign screen")
			continue
		}
		game, _ := cat.GameForScreen(r.Screen)
		b := models.FromRecord(r, game)
		if b.Status != models.StatusActive {
			continue
		}
		list = append(list, b)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Screen < list[j].Screen })

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug().Uint64("generation", gen).Msg("discarding stale booking list")
		return s.Bookings(), nil
	}
	s.replaceLocked(list)
	s.mu.Unlock()

	specs := make([]timer.Spec, 0, len(list))
	for _, b := range list {
		specs = append(specs, timer.Spec{
			BookingID:        b.ID,
			BaseMinutes:      b.DurationMinutes,
			ExtensionMinutes: b.ExtendedMinutes,
		})
	}
	if err := s.timers.Sync(ctx, specs); err != nil {
		s.logger.Warn().Err(err).Msg("timer sync failed")
	}
	return list, nil
}

func (s *Service) replaceLocked(list []models.Booking) {
	s.bookings = make(map[string]models.Booking, len(list))
	for _, b := range list {
		s.bookings[b.ID] = b
	}
	for id := range s.pendingExt {
		if _, ok := s.bookings[id]; !ok {
			delete(s.pendingExt, id)
		}
	}
	for id := range s.pendingSnacks {
		if _, ok := s.bookings[id]; !ok {
			delete(s.pendingSnacks, id)
		}
	}
}

// Reset forgets every booking, staged change and applied coupon. In-flight
// list refreshes are discarded.
func (s *Service) Reset() {
	s.mu.Lock()
	s.generation++
	s.bookings = make(map[string]models.Booking)
	s.pendingExt = make(map[string]PendingExtension)
	s.pendingSnacks = make(map[string]PendingSnacks)
	s.debited = make(map[string]float64)
	s.mu.Unlock()
	s.coupon.Clear()
}

// Bookings returns the last reconciled list.
func (s *Service) Bookings() []models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		list = append(list, b)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Screen < list[j].Screen })
	return list
}

// Booking returns a booking by id, refreshing the list once when unknown.
func (s *Service) Booking(ctx context.Context, id string) (models.Booking, error) {
	if b, ok := s.Lookup(id); ok {
		return b, nil
	}
	if _, err := s.ListActive(ctx); err != nil {
		return models.Booking{}, err
	}
	if b, ok := s.Lookup(id); ok {
		return b, nil
	}
	return models.Booking{}, ErrBookingNotFound
}

// Lookup returns the cached booking without refreshing.
func (s *Service) Lookup(id string) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

// update and remove bump the generation so that a refresh started before
// the change cannot undo it.
func (s *Service) update(id string, fn func(*models.Booking)) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return b, false
	}
	fn(&b)
	s.bookings[id] = b
	s.generation++
	return b, true
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	delete(s.bookings, id)
	delete(s.pendingExt, id)
	delete(s.pendingSnacks, id)
	delete(s.debited, id)
}

// discountFor resolves the discount of a booking or draft: a valid coupon
// first, today's store discount otherwise.
func (s *Service) discountFor(ctx context.Context, coupon *backend.Coupon) pricing.Discount {
	storeID := s.identity.StoreID()
	now := s.now()
	if coupon != nil && pricing.ValidateCoupon(coupon, storeID, now) == nil {
		return pricing.CouponDiscount(coupon)
	}
	daily, err := s.api.TodayDiscount(ctx, storeID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("daily discount unavailable")
		return pricing.None
	}
	return pricing.Resolve(nil, daily, storeID, now)
}

func (s *Service) staffName() string {
	staff, ok := s.identity.Staff()
	if !ok {
		return ""
	}
	if staff.Name != "" {
		return staff.Name
	}
	return staff.Username
}

func (s *Service) publish(eventType string, payload any) {
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("publish failed")
	}
}

// SearchCustomers returns autocomplete suggestions; queries shorter than
// three characters return nothing.
func (s *Service) SearchCustomers(ctx context.Context, query string) ([]backend.Customer, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 3 {
		return nil, nil
	}
	return s.api.SearchCustomers(ctx, query)
}

// SnackMenu returns the snacks and drinks catalog, empty when the cafe is off.
func (s *Service) SnackMenu(ctx context.Context) ([]backend.SnackItem, error) {
	cat, err := s.catalogs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if !cat.CafeEnabled {
		return nil, nil
	}
	return s.api.SnacksAndDrinks(ctx, s.identity.StoreID())
}
