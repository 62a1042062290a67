package orders

import (
	"context"
	"fmt"
	"strings"

	"gamezone/internal/backend"
	"gamezone/internal/events"
	"gamezone/internal/metrics"
	"gamezone/internal/models"
)

// SnackLine is one selected snack or drink.
type SnackLine struct {
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"min=1"`
}

// Total is price times quantity.
func (l SnackLine) Total() float64 {
	return l.Price * float64(l.Quantity)
}

// SnackTotal sums a selection.
func SnackTotal(lines []SnackLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Total()
	}
	return total
}

func orderItems(lines []SnackLine) []backend.OrderItem {
	items := make([]backend.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, backend.OrderItem{
			Name:     l.Name,
			Category: l.Category,
			Price:    l.Price,
			Quantity: l.Quantity,
		})
	}
	return items
}

// PendingSnacks is a staged snack order awaiting confirmation.
type PendingSnacks struct {
	BookingID string      `json:"bookingId"`
	Items     []SnackLine `json:"items"`
	Total     float64     `json:"total"`
	NewTotal  float64     `json:"newExtraSnacksTotal"`
}

// StageSnacks keeps a snack selection for a running booking.
func (s *Service) StageSnacks(ctx context.Context, id string, lines []SnackLine) (PendingSnacks, error) {
	if len(lines) == 0 {
		return PendingSnacks{}, ErrEmptySnacks
	}
	for _, l := range lines {
		if err := s.validate.Struct(l); err != nil {
			return PendingSnacks{}, &ValidationError{Err: err}
		}
	}
	cat, err := s.catalogs.Load(ctx)
	if err != nil {
		return PendingSnacks{}, fmt.Errorf("load catalog: %w", err)
	}
	if !cat.CafeEnabled {
		return PendingSnacks{}, ErrCafeDisabled
	}
	b, err := s.Booking(ctx, id)
	if err != nil {
		return PendingSnacks{}, err
	}

	total := SnackTotal(lines)
	p := PendingSnacks{
		BookingID: id,
		Items:     append([]SnackLine(nil), lines...),
		Total:     total,
		NewTotal:  b.ExtraSnacksTotal + total,
	}
	s.mu.Lock()
	s.pendingSnacks[id] = p
	s.mu.Unlock()
	return p, nil
}

// PendingSnacks returns the staged snacks of a booking.
func (s *Service) PendingSnacks(id string) (PendingSnacks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pendingSnacks[id]
	return p, ok
}

// CancelSnacks drops a staged snack order.
func (s *Service) CancelSnacks(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingSnacks, id)
}

// ConfirmSnacks adds the staged snacks to the booking's extra snack total
// and records the cafe order.
func (s *Service) ConfirmSnacks(ctx context.Context, id string) (models.Booking, error) {
	p, ok := s.PendingSnacks(id)
	if !ok {
		return models.Booking{}, ErrNoPendingSnacks
	}
	b, err := s.Booking(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}

	newTotal := b.ExtraSnacksTotal + p.Total
	if err := s.api.UpdateBooking(ctx, id, backend.BookingUpdate{ExtraSnacksPrice: &newTotal}); err != nil {
		return models.Booking{}, fmt.Errorf("update booking: %w", err)
	}
	b, _ = s.update(id, func(b *models.Booking) { b.ExtraSnacksTotal = newTotal })
	s.CancelSnacks(id)

	if err := s.api.RecordGamezoneOrder(ctx, backend.GamezoneOrder{
		CustomerName: b.Name,
		Phone:        b.Phone,
		ScreenNumber: strings.ToLower(b.Screen),
		Items:        orderItems(p.Items),
	}); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", id).Msg("cafe order log failed")
	}

	metrics.IncSnacksConfirmed()
	s.logger.Info().Str("booking_id", id).Float64("extra_snacks_total", newTotal).Msg("snacks added")
	s.publish(events.SnacksAdded, p)
	return b, nil
}
