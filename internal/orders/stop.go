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

// StopResult describes a stopped booking.
type StopResult struct {
	Booking     models.Booking       `json:"booking"`
	Record      models.StopRecord    `json:"record"`
	LedgerEntry *backend.LedgerEntry `json:"ledgerEntry,omitempty"`
}

type stopDetails struct {
	BookingID            string  `json:"bookingId"`
	Name                 string  `json:"name"`
	PhoneNumber          string  `json:"phoneNumber"`
	Screen               string  `json:"Screen"`
	Game                 string  `json:"game"`
	ExtendedTime         int     `json:"extendedTime"`
	ExtendedTimeAmount   float64 `json:"extendedTimeAmount"`
	ExtendedSnacksAmount float64 `json:"extendedSnacksAmount"`
	RemainingAmount      float64 `json:"RemainingAmount"`
	TotalDuration        int     `json:"totalDuration"`
	TotalPlayers         int     `json:"totalPlayers"`
	FirstGamePrice       float64 `json:"firstGamePrice"`
	StopMode             string  `json:"stopMode"`
}

func newStopDetails(b models.Booking, mode string) stopDetails {
	return stopDetails{
		BookingID:            b.ID,
		Name:                 b.Name,
		PhoneNumber:          b.Phone,
		Screen:               b.Screen,
		Game:                 b.Game,
		ExtendedTime:         b.ExtendedMinutes,
		ExtendedTimeAmount:   b.ExtendedAmount,
		ExtendedSnacksAmount: b.ExtraSnacksTotal,
		RemainingAmount:      b.RemainingAmount(),
		TotalDuration:        b.TotalMinutes(),
		TotalPlayers:         b.Players,
		FirstGamePrice:       b.Paid,
		StopMode:             mode,
	}
}

// Stop ends a booking without touching the customer's ledger.
func (s *Service) Stop(ctx context.Context, id string) (StopResult, error) {
	return s.stop(ctx, id, false)
}

// StopWithLedger debits the remaining amount to the customer's ledger, then
// ends the booking. A failed debit leaves the booking running.
func (s *Service) StopWithLedger(ctx context.Context, id string) (StopResult, error) {
	return s.stop(ctx, id, true)
}

func (s *Service) stop(ctx context.Context, id string, ledger bool) (StopResult, error) {
	b, err := s.Booking(ctx, id)
	if err != nil {
		return StopResult{}, err
	}
	now := s.now()
	remaining := b.RemainingAmount()

	mode := models.StopPlain
	var res StopResult
	var debit float64
	if ledger {
		mode = models.StopLedger
		if debit, res.LedgerEntry, err = s.debitLedger(ctx, b, remaining); err != nil {
			return StopResult{}, err
		}
	}

	if err := s.api.LogActivity(ctx, backend.ActivityEvent{
		Action:  "stop_order",
		Details: newStopDetails(b, mode),
	}); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", id).Msg("activity log failed")
	}

	if err := s.api.SetBookingStatus(ctx, id, models.StatusStopped); err != nil {
		return StopResult{}, fmt.Errorf("stop booking: %w", err)
	}

	s.remove(id)
	if err := s.timers.Clear(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", id).Msg("clear timer failed")
	}

	b.Status = models.StatusStopped
	res.Booking = b
	res.Record = models.NewStopRecord(b, s.identity.StoreID(), mode, debit, now)
	res.Record.StaffName = s.staffName()

	metrics.IncBookingStopped(mode)
	s.logger.Info().
		Str("booking_id", id).
		Str("mode", mode).
		Float64("remaining", remaining).
		Msg("booking stopped")
	s.publish(events.BookingStopped, res.Record)
	return res, nil
}

// debitLedger posts the remaining amount once per booking. A retry after a
// failed status update reuses the earlier debit.
func (s *Service) debitLedger(ctx context.Context, b models.Booking, remaining float64) (float64, *backend.LedgerEntry, error) {
	s.mu.Lock()
	done, ok := s.debited[b.ID]
	s.mu.Unlock()
	if ok {
		return done, nil, nil
	}
	if remaining <= 0 {
		return 0, nil, nil
	}
	phone := strings.TrimSpace(b.Phone)
	if phone == "" {
		return 0, nil, ErrMissingPhone
	}

	now := s.now()
	entry := backend.LedgerEntry{
		Date:            now,
		Time:            now.Format("15:04"),
		Description:     fmt.Sprintf("Booking %s payment", b.Screen),
		Amount:          remaining,
		TransactionType: backend.TransactionDebit,
		BookingID:       b.ID,
	}
	if err := s.api.AddLedgerTransaction(ctx, phone, entry); err != nil {
		return 0, nil, fmt.Errorf("record ledger debit: %w", err)
	}

	s.mu.Lock()
	s.debited[b.ID] = remaining
	s.mu.Unlock()
	return remaining, &entry, nil
}
