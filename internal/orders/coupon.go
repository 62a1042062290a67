package orders

import (
	"context"
	"errors"
	"strings"
	"sync"

	"gamezone/internal/backend"
	"gamezone/internal/metrics"
	"gamezone/internal/pricing"
)

var (
	ErrCouponCodeRequired   = errors.New("please enter a coupon code")
	ErrCouponInFlight       = errors.New("coupon validation already in progress")
	ErrCouponAlreadyApplied = errors.New("a coupon is already applied")
)

// CouponError carries the message shown to staff for a rejected coupon.
type CouponError struct {
	Err     error
	Message string
}

func (e *CouponError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *CouponError) Unwrap() error {
	return e.Err
}

// CouponState is the state of the coupon field of the booking form.
type CouponState string

const (
	CouponIdle       CouponState = "idle"
	CouponValidating CouponState = "validating"
	CouponApplied    CouponState = "applied"
)

var couponTransitions = map[CouponState][]CouponState{
	CouponIdle:       {CouponValidating},
	CouponValidating: {CouponApplied, CouponIdle},
	CouponApplied:    {CouponIdle},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to CouponState) bool {
	for _, next := range couponTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CouponStatus is a snapshot of the coupon flow.
type CouponStatus struct {
	State    CouponState      `json:"state"`
	Code     string           `json:"code,omitempty"`
	Discount pricing.Discount `json:"discount"`
	Message  string           `json:"message,omitempty"`
}

// CouponFlow tracks one coupon being validated or applied.
type CouponFlow struct {
	mu      sync.Mutex
	state   CouponState
	coupon  *backend.Coupon
	message string
}

// NewCouponFlow starts idle.
func NewCouponFlow() *CouponFlow {
	return &CouponFlow{state: CouponIdle}
}

func (f *CouponFlow) transitionLocked(to CouponState) bool {
	if !CanTransition(f.state, to) {
		return false
	}
	f.state = to
	return true
}

// Begin moves to validating.
func (f *CouponFlow) Begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case CouponValidating:
		return ErrCouponInFlight
	case CouponApplied:
		return ErrCouponAlreadyApplied
	}
	f.transitionLocked(CouponValidating)
	f.message = ""
	return nil
}

// Succeed applies c.
func (f *CouponFlow) Succeed(c *backend.Coupon) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.transitionLocked(CouponApplied) {
		return false
	}
	f.coupon = c
	f.message = ""
	return true
}

// Fail returns to idle keeping msg for display.
func (f *CouponFlow) Fail(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transitionLocked(CouponIdle) {
		f.coupon = nil
		f.message = msg
	}
}

// Clear removes an applied coupon.
func (f *CouponFlow) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = CouponIdle
	f.coupon = nil
	f.message = ""
}

// Coupon returns the applied coupon, nil otherwise.
func (f *CouponFlow) Coupon() *backend.Coupon {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != CouponApplied {
		return nil
	}
	return f.coupon
}

// Status snapshots the flow.
func (f *CouponFlow) Status() CouponStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := CouponStatus{State: f.state, Discount: pricing.None, Message: f.message}
	if f.state == CouponApplied && f.coupon != nil {
		st.Code = f.coupon.Code
		st.Discount = pricing.CouponDiscount(f.coupon)
	}
	return st
}

// ApplyCoupon looks a code up and, when valid for this store today, applies
// it to the booking form. Only one lookup may run at a time.
func (s *Service) ApplyCoupon(ctx context.Context, code string) (CouponStatus, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return s.coupon.Status(), ErrCouponCodeRequired
	}
	if err := s.coupon.Begin(); err != nil {
		return s.coupon.Status(), err
	}

	c, err := s.api.GetCoupon(ctx, code)
	if err != nil {
		var lookup *backend.CouponLookupError
		if errors.As(err, &lookup) {
			err = &CouponError{Err: pricing.ErrCouponInvalid, Message: lookup.Message}
			metrics.IncCoupon("invalid")
		}
		s.coupon.Fail(err.Error())
		return s.coupon.Status(), err
	}

	if err := pricing.ValidateCoupon(c, s.identity.StoreID(), s.now()); err != nil {
		s.coupon.Fail(err.Error())
		metrics.IncCoupon(couponResult(err))
		return s.coupon.Status(), &CouponError{Err: err}
	}

	s.coupon.Succeed(c)
	metrics.IncCoupon("applied")
	s.logger.Info().Str("code", c.Code).Msg("coupon applied")
	return s.coupon.Status(), nil
}

// ClearCoupon removes the applied coupon.
func (s *Service) ClearCoupon() CouponStatus {
	s.coupon.Clear()
	return s.coupon.Status()
}

// CouponStatus snapshots the coupon field.
func (s *Service) CouponStatus() CouponStatus {
	return s.coupon.Status()
}

func couponResult(err error) string {
	switch {
	case errors.Is(err, pricing.ErrCouponExpired):
		return "expired"
	case errors.Is(err, pricing.ErrCouponNotActive):
		return "not_active"
	case errors.Is(err, pricing.ErrCouponUsed):
		return "used"
	case errors.Is(err, pricing.ErrCouponWrongStore):
		return "wrong_store"
	default:
		return "invalid"
	}
}
