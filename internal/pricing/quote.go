package pricing

import "strings"

// SeatingCharge is charged per non-playing member.
const SeatingCharge = 20.0

// Payment methods accepted at the counter.
const (
	PaymentCash   = "Cash"
	PaymentOnline = "Online"
	PaymentUnpaid = "Unpaid"
)

// Draft is the full input of the booking form.
type Draft struct {
	Game              string
	DurationMinutes   int
	Players           int
	NonPlayingMembers int
	SnackTotal        float64
	Payment           string
	CafeEnabled       bool
}

// Quote is every derived amount of a draft.
type Quote struct {
	BasePrice      float64  `json:"basePrice"`
	DiscountAmount float64  `json:"discountAmount"`
	Price          float64  `json:"price"`
	SnackAmount    float64  `json:"snackAmount"`
	SeatingCharge  float64  `json:"seatingCharge"`
	Total          float64  `json:"total"`
	Remaining      float64  `json:"remaining"`
	Discount       Discount `json:"discount"`
}

// PricingUnavailable reports that no rate applied to the draft.
func (q Quote) PricingUnavailable() bool {
	return q.BasePrice == 0
}

// Quote derives price, discount and totals from a draft in one pass.
func (e *Engine) Quote(d Draft, discount Discount) Quote {
	q := Quote{Discount: discount}
	q.BasePrice = e.Price(d.Game, d.DurationMinutes, d.Players)
	q.Price, q.DiscountAmount = discount.Apply(q.BasePrice)

	if d.CafeEnabled && d.SnackTotal > 0 {
		q.SnackAmount = d.SnackTotal
	}
	if d.NonPlayingMembers > 0 {
		q.SeatingCharge = float64(d.NonPlayingMembers) * SeatingCharge
	}
	q.Total = q.Price + q.SnackAmount + q.SeatingCharge
	if strings.EqualFold(d.Payment, PaymentUnpaid) {
		q.Remaining = q.Total
	}
	return q
}
