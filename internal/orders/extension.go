package orders

import (
	"context"
	"fmt"
	"math"

	"gamezone/internal/backend"
	"gamezone/internal/catalog"
	"gamezone/internal/events"
	"gamezone/internal/metrics"
	"gamezone/internal/models"
	"gamezone/internal/pricing"
)

// PendingExtension is a staged extension awaiting confirmation.
type PendingExtension struct {
	BookingID        string           `json:"bookingId"`
	AddedMinutes     int              `json:"addedMinutes"`
	ExtensionMinutes int              `json:"extensionMinutes"`
	TotalMinutes     int              `json:"totalMinutes"`
	BasePrice        float64          `json:"basePrice"`
	DiscountedPrice  float64          `json:"discountedPrice"`
	Discount         pricing.Discount `json:"discount"`
	Amount           float64          `json:"amount"`
	Unpriced         bool             `json:"unpriced,omitempty"`
}

// ExtensionOwed is what a customer owes for the extended session: the
// discounted price of the whole new duration minus what was paid for the
// base session, never negative.
func ExtensionOwed(discountedTotal, paid float64) float64 {
	return math.Max(0, discountedTotal-paid)
}

// StageExtension prices adding minutes to a booking and keeps the result
// until it is confirmed or cancelled. Staging again replaces the previous
// pick.
func (s *Service) StageExtension(ctx context.Context, id string, minutes int) (PendingExtension, error) {
	if minutes <= 0 || minutes%30 != 0 {
		return PendingExtension{}, ErrInvalidExtension
	}
	b, err := s.Booking(ctx, id)
	if err != nil {
		return PendingExtension{}, err
	}
	cat, err := s.catalogs.Load(ctx)
	if err != nil {
		return PendingExtension{}, fmt.Errorf("load catalog: %w", err)
	}

	p := s.priceExtension(ctx, cat, b, minutes)

	s.mu.Lock()
	s.pendingExt[id] = p
	s.mu.Unlock()
	return p, nil
}

func (s *Service) priceExtension(ctx context.Context, cat *catalog.Catalog, b models.Booking, minutes int) PendingExtension {
	ext := b.ExtendedMinutes + minutes
	total := b.DurationMinutes + ext
	game := b.Game
	if game == "" {
		game = b.Screen
	}

	engine := pricing.NewEngine(cat, s.policy)
	base := engine.Price(game, total, b.Players)
	discount := s.discountFor(ctx, b.Coupon)
	final, _ := discount.Apply(base)

	return PendingExtension{
		BookingID:        b.ID,
		AddedMinutes:     minutes,
		ExtensionMinutes: ext,
		TotalMinutes:     total,
		BasePrice:        base,
		DiscountedPrice:  final,
		Discount:         discount,
		Amount:           ExtensionOwed(final, b.Paid),
		Unpriced:         base == 0,
	}
}

// PendingExtension returns the staged extension of a booking.
func (s *Service) PendingExtension(id string) (PendingExtension, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendingExt[id]
	return p, ok
}

// CancelExtension drops a staged extension.
func (s *Service) CancelExtension(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingExt, id)
}

// ConfirmExtension sends the staged extension to the backend and adds the
// new minutes to the running timer. The pending pick survives a failed update.
// When the booking's extension changed since staging, the pick is re-priced
// on the current totals and ErrExtensionChanged is returned.
func (s *Service) ConfirmExtension(ctx context.Context, id string) (models.Booking, error) {
	p, ok := s.PendingExtension(id)
	if !ok {
		return models.Booking{}, ErrNoPendingExtension
	}
	current, ok := s.Lookup(id)
	if !ok {
		return models.Booking{}, ErrBookingNotFound
	}
	if current.ExtendedMinutes != p.ExtensionMinutes-p.AddedMinutes {
		if _, err := s.StageExtension(ctx, id, p.AddedMinutes); err != nil {
			return models.Booking{}, err
		}
		s.logger.Warn().
			Str("booking_id", id).
			Int("staged_on", p.ExtensionMinutes-p.AddedMinutes).
			Int("current", current.ExtendedMinutes).
			Msg("extension re-staged")
		return models.Booking{}, ErrExtensionChanged
	}

	ext, amount := p.ExtensionMinutes, p.Amount
	if err := s.api.UpdateBooking(ctx, id, backend.BookingUpdate{
		ExtendedTime:   &ext,
		ExtendedAmount: &amount,
	}); err != nil {
		return models.Booking{}, fmt.Errorf("update booking: %w", err)
	}

	b, _ := s.update(id, func(b *models.Booking) {
		b.ExtendedMinutes = ext
		b.ExtendedAmount = amount
	})
	s.CancelExtension(id)
	s.timers.ApplyExtension(ctx, id, ext)

	metrics.IncExtensionConfirmed()
	s.logger.Info().Str("booking_id", id).Int("extension_minutes", ext).Float64("amount", amount).Msg("extension confirmed")
	s.publish(events.BookingExtended, p)
	return b, nil
}
