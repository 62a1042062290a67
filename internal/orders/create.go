package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamezone/internal/backend"
	"gamezone/internal/catalog"
	"gamezone/internal/events"
	"gamezone/internal/metrics"
	"gamezone/internal/models"
	"gamezone/internal/pricing"

	"github.com/go-playground/validator/v10"
)

var (
	ErrScreenNotPermitted = errors.New("screen does not belong to this store")
	ErrScreenOccupied     = errors.New("screen is already in use")
	ErrTooManyPlayers     = errors.New("player count exceeds what the game allows")
	ErrInvalidDuration    = errors.New("duration must be a multiple of 30 minutes")
)

// ValidationError wraps field validation failures of a request.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	var fields validator.ValidationErrors
	if errors.As(e.Err, &fields) {
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, fmt.Sprintf("%s (%s)", f.Field(), f.Tag()))
		}
		return "invalid fields: " + strings.Join(names, ", ")
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CreateRequest is the booking form.
type CreateRequest struct {
	Name              string      `json:"name" validate:"required"`
	Phone             string      `json:"phone" validate:"required,min=7,max=15"`
	Screen            string      `json:"screen" validate:"required"`
	DurationMinutes   int         `json:"durationMinutes" validate:"required,gt=0"`
	Players           int         `json:"players" validate:"required,min=1"`
	NonPlayingMembers int         `json:"nonPlayingMembers" validate:"gte=0"`
	Payment           string      `json:"payment" validate:"required,oneof=Cash Online Unpaid"`
	Snacks            []SnackLine `json:"snacks,omitempty" validate:"dive"`
}

// QuoteResult is a live quote of the booking form.
type QuoteResult struct {
	pricing.Quote
	Game           string       `json:"game"`
	Durations      []int        `json:"durations"`
	AllowedPlayers []int        `json:"allowedPlayers"`
	Unpriced       bool         `json:"unpriced"`
	Coupon         CouponStatus `json:"coupon"`
}

func draftFor(cat *catalog.Catalog, req CreateRequest) (pricing.Draft, string) {
	game, _ := cat.GameForScreen(req.Screen)
	return pricing.Draft{
		Game:              game,
		DurationMinutes:   req.DurationMinutes,
		Players:           req.Players,
		NonPlayingMembers: req.NonPlayingMembers,
		SnackTotal:        SnackTotal(req.Snacks),
		Payment:           req.Payment,
		CafeEnabled:       cat.CafeEnabled,
	}, game
}

// Quote recomputes every derived amount of the form. It does not validate
// the request so partially filled forms still get a quote.
func (s *Service) Quote(ctx context.Context, req CreateRequest) (QuoteResult, error) {
	cat, err := s.catalogs.Load(ctx)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("load catalog: %w", err)
	}
	draft, game := draftFor(cat, req)
	q := pricing.NewEngine(cat, s.policy).Quote(draft, s.discountFor(ctx, s.coupon.Coupon()))
	return QuoteResult{
		Quote:          q,
		Game:           game,
		Durations:      cat.Durations(game),
		AllowedPlayers: cat.AllowedPlayers(game),
		Unpriced:       game != "" && req.DurationMinutes > 0 && q.PricingUnavailable(),
		Coupon:         s.coupon.Status(),
	}, nil
}

// CreateBooking validates the form, checks the screen is free and submits
// the booking. The applied coupon is consumed afterwards.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*backend.BookingRecord, QuoteResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Screen = strings.TrimSpace(req.Screen)
	if err := s.validate.Struct(req); err != nil {
		return nil, QuoteResult{}, &ValidationError{Err: err}
	}
	if req.DurationMinutes%30 != 0 {
		return nil, QuoteResult{}, ErrInvalidDuration
	}

	cat, err := s.catalogs.Load(ctx)
	if err != nil {
		return nil, QuoteResult{}, fmt.Errorf("load catalog: %w", err)
	}
	if !cat.Permits(req.Screen) {
		return nil, QuoteResult{}, ErrScreenNotPermitted
	}
	draft, game := draftFor(cat, req)
	if game == "" {
		return nil, QuoteResult{}, ErrScreenNotPermitted
	}
	if limit := cat.MaxPlayers(game); limit > 0 && req.Players > limit {
		return nil, QuoteResult{}, ErrTooManyPlayers
	}
	if len(req.Snacks) > 0 && !cat.CafeEnabled {
		return nil, QuoteResult{}, ErrCafeDisabled
	}

	occupied, err := s.api.ActiveScreens(ctx)
	if err != nil {
		return nil, QuoteResult{}, fmt.Errorf("fetch active screens: %w", err)
	}
	for _, screen := range occupied {
		if strings.EqualFold(strings.TrimSpace(screen), req.Screen) {
			return nil, QuoteResult{}, ErrScreenOccupied
		}
	}

	coupon := s.coupon.Coupon()
	discount := s.discountFor(ctx, coupon)
	q := pricing.NewEngine(cat, s.policy).Quote(draft, discount)
	if discount.Source != pricing.SourceCoupon {
		coupon = nil
	}

	rec, err := s.api.CreateBooking(ctx, backend.CreateBookingRequest{
		Name:              req.Name,
		Phone:             req.Phone,
		Screen:            req.Screen,
		Game:              game,
		Time:              req.DurationMinutes,
		Snacks:            q.SnackAmount,
		Paid:              q.Price,
		Players:           req.Players,
		NonPlayingMembers: req.NonPlayingMembers,
		TotalAmount:       q.Total,
		Payment:           req.Payment,
		Store:             s.identity.StoreID(),
		Discount:          discount.Label,
		RemainingAmount:   q.Remaining,
		CouponDetails:     coupon,
	})
	if err != nil {
		return nil, QuoteResult{}, fmt.Errorf("create booking: %w", err)
	}

	if coupon != nil {
		if err := s.api.MarkCouponUsed(ctx, coupon.Code); err != nil {
			s.logger.Warn().Err(err).Str("code", coupon.Code).Msg("mark coupon used failed")
		}
	}
	s.coupon.Clear()

	if cat.CafeEnabled && len(req.Snacks) > 0 {
		if err := s.api.RecordGamezoneOrder(ctx, backend.GamezoneOrder{
			CustomerName: req.Name,
			Phone:        req.Phone,
			ScreenNumber: strings.ToLower(req.Screen),
			Items:        orderItems(req.Snacks),
		}); err != nil {
			s.logger.Warn().Err(err).Str("screen", req.Screen).Msg("cafe order log failed")
		}
	}

	metrics.IncBookingCreated(req.Payment)
	s.logger.Info().
		Str("screen", req.Screen).
		Str("game", game).
		Float64("total", q.Total).
		Str("payment", req.Payment).
		Msg("booking created")

	booking := models.FromRecord(*rec, game)
	s.publish(events.BookingCreated, booking)

	if _, err := s.ListActive(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("refresh after create failed")
	}

	return rec, QuoteResult{
		Quote:          q,
		Game:           game,
		Durations:      cat.Durations(game),
		AllowedPlayers: cat.AllowedPlayers(game),
		Unpriced:       q.PricingUnavailable(),
		Coupon:         s.coupon.Status(),
	}, nil
}
