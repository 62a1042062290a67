package models

import (
	"strings"
	"time"

	"gamezone/internal/backend"
)

// Booking statuses.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// Booking is the view model of an active gaming session.
type Booking struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	Screen            string          `json:"screen"`
	Game              string          `json:"game"`
	DurationMinutes   int             `json:"durationMinutes"`
	Players           int             `json:"players"`
	NonPlayingMembers int             `json:"nonPlayingMembers"`
	Paid              float64         `json:"paid"`
	Snacks            float64         `json:"snacks"`
	TotalAmount       float64         `json:"totalAmount"`
	Payment           string          `json:"payment"`
	Status            string          `json:"status"`
	ExtendedMinutes   int             `json:"extendedMinutes"`
	ExtendedAmount    float64         `json:"extendedAmount"`
	ExtraSnacksTotal  float64         `json:"extraSnacksTotal"`
	UnpaidAmount      float64         `json:"unpaidAmount"`
	Coupon            *backend.Coupon `json:"coupon,omitempty"`
}

// FromRecord maps a backend record. game is the catalog game of the screen;
// when empty the record's own game field is used.
func FromRecord(r backend.BookingRecord, game string) Booking {
	if game == "" {
		game = r.Game
	}
	status := r.Status
	if status == "" {
		status = StatusActive
	}
	return Booking{
		ID:                r.ID,
		Name:              r.Name,
		Phone:             r.Phone,
		Screen:            strings.TrimSpace(r.Screen),
		Game:              game,
		DurationMinutes:   r.Duration,
		Players:           r.Players,
		NonPlayingMembers: r.NonPlayingMembers,
		Paid:              r.Paid,
		Snacks:            r.Snacks,
		TotalAmount:       r.TotalAmount,
		Payment:           r.Payment,
		Status:            status,
		ExtendedMinutes:   r.ExtendedTime,
		ExtendedAmount:    r.ExtendedAmount,
		ExtraSnacksTotal:  r.ExtraSnacksPrice,
		UnpaidAmount:      r.RemainingAmount,
		Coupon:            r.CouponDetails,
	}
}

// RemainingAmount is what the customer still owes.
func (b Booking) RemainingAmount() float64 {
	return b.UnpaidAmount + b.ExtendedAmount + b.ExtraSnacksTotal
}

// TotalMinutes is the base duration plus all extensions.
func (b Booking) TotalMinutes() int {
	return b.DurationMinutes + b.ExtendedMinutes
}

// Stop modes.
const (
	StopPlain  = "stop"
	StopLedger = "ledger"
)

// StopRecord is the snapshot of a booking at the moment it was stopped.
type StopRecord struct {
	ID               int64     `json:"id,omitempty"`
	BookingID        string    `json:"bookingId"`
	StoreID          string    `json:"storeId"`
	StaffName        string    `json:"staffName,omitempty"`
	CustomerName     string    `json:"customerName"`
	Phone            string    `json:"phone"`
	Screen           string    `json:"screen"`
	Game             string    `json:"game"`
	TotalMinutes     int       `json:"totalMinutes"`
	Players          int       `json:"players"`
	FirstGamePrice   float64   `json:"firstGamePrice"`
	ExtendedMinutes  int       `json:"extendedMinutes"`
	ExtendedAmount   float64   `json:"extendedAmount"`
	ExtraSnacksTotal float64   `json:"extraSnacksTotal"`
	RemainingAmount  float64   `json:"remainingAmount"`
	Mode             string    `json:"mode"`
	LedgerDebit      float64   `json:"ledgerDebit"`
	StoppedAt        time.Time `json:"stoppedAt"`
}

// NewStopRecord snapshots b.
func NewStopRecord(b Booking, storeID, mode string, ledgerDebit float64, at time.Time) StopRecord {
	return StopRecord{
		BookingID:        b.ID,
		StoreID:          storeID,
		CustomerName:     b.Name,
		Phone:            b.Phone,
		Screen:           b.Screen,
		Game:             b.Game,
		TotalMinutes:     b.TotalMinutes(),
		Players:          b.Players,
		FirstGamePrice:   b.Paid,
		ExtendedMinutes:  b.ExtendedMinutes,
		ExtendedAmount:   b.ExtendedAmount,
		ExtraSnacksTotal: b.ExtraSnacksTotal,
		RemainingAmount:  b.RemainingAmount(),
		Mode:             mode,
		LedgerDebit:      ledgerDebit,
		StoppedAt:        at,
	}
}
