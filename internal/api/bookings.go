package api

import (
	"net/http"

	"gamezone/internal/backend"
	"gamezone/internal/metrics"
	"gamezone/internal/models"
	"gamezone/internal/orders"
)

// BookingView is a booking row with its countdown and staged changes.
type BookingView struct {
	models.Booking
	RemainingSeconds int                      `json:"remainingSeconds"`
	TimerMounted     bool                     `json:"timerMounted"`
	RemainingAmount  float64                  `json:"remainingAmount"`
	PendingExtension *orders.PendingExtension `json:"pendingExtension,omitempty"`
	PendingSnacks    *orders.PendingSnacks    `json:"pendingSnacks,omitempty"`
}

// view builds a row. timers is a board snapshot shared by a whole list; nil
// reads the board for this booking alone.
func (s *HTTPServer) view(b models.Booking, timers map[string]int) BookingView {
	v := BookingView{Booking: b, RemainingAmount: b.RemainingAmount()}
	switch {
	case timers != nil:
		v.RemainingSeconds, v.TimerMounted = timers[b.ID]
	case s.deps.Timers != nil:
		v.RemainingSeconds, v.TimerMounted = s.deps.Timers.Remaining(b.ID)
	}
	if p, ok := s.deps.Orders.PendingExtension(b.ID); ok {
		v.PendingExtension = &p
	}
	if p, ok := s.deps.Orders.PendingSnacks(b.ID); ok {
		v.PendingSnacks = &p
	}
	return v
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_list")

	list, err := s.deps.Orders.ListActive(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	var snapshot map[string]int
	if s.deps.Timers != nil {
		snapshot = s.deps.Timers.Snapshot()
	}
	out := make([]BookingView, 0, len(list))
	for _, b := range list {
		out = append(out, s.view(b, snapshot))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": out, "count": len(out)})
}

func (s *HTTPServer) handleQuote(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_quote")

	var req orders.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	q, err := s.deps.Orders.Quote(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type createResponse struct {
	Booking *backend.BookingRecord `json:"booking"`
	Quote   orders.QuoteResult     `json:"quote"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_create")

	var req orders.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	rec, q, err := s.deps.Orders.CreateBooking(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{Booking: rec, Quote: q})
}

type couponRequest struct {
	Code string `json:"code"`
}

func (s *HTTPServer) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("coupon_apply")

	var req couponRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	st, err := s.deps.Orders.ApplyCoupon(r.Context(), req.Code)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *HTTPServer) handleClearCoupon(w http.ResponseWriter, _ *http.Request) {
	metrics.IncHTTP("coupon_clear")
	writeJSON(w, http.StatusOK, s.deps.Orders.ClearCoupon())
}

type extensionRequest struct {
	Minutes int `json:"minutes"`
}

func (s *HTTPServer) handleStageExtension(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("extension_stage")

	var req extensionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := s.deps.Orders.StageExtension(r.Context(), r.PathValue("id"), req.Minutes)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleConfirmExtension(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("extension_confirm")

	b, err := s.deps.Orders.ConfirmExtension(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(b, nil))
}

func (s *HTTPServer) handleCancelExtension(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("extension_cancel")
	s.deps.Orders.CancelExtension(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type snacksRequest struct {
	Items []orders.SnackLine `json:"items"`
}

func (s *HTTPServer) handleStageSnacks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("snacks_stage")

	var req snacksRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := s.deps.Orders.StageSnacks(r.Context(), r.PathValue("id"), req.Items)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleConfirmSnacks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("snacks_confirm")

	b, err := s.deps.Orders.ConfirmSnacks(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(b, nil))
}

func (s *HTTPServer) handleCancelSnacks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("snacks_cancel")
	s.deps.Orders.CancelSnacks(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

type stopRequest struct {
	Ledger bool `json:"ledger"`
}

func (s *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("bookings_stop")

	var req stopRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	id := r.PathValue("id")
	var (
		res orders.StopResult
		err error
	)
	if req.Ledger {
		res, err = s.deps.Orders.StopWithLedger(r.Context(), id)
	} else {
		res, err = s.deps.Orders.Stop(r.Context(), id)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleSearchCustomers(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("customers_search")

	list, err := s.deps.Orders.SearchCustomers(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if list == nil {
		list = []backend.Customer{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"customers": list})
}

func (s *HTTPServer) handleSnacks(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("snacks_menu")

	menu, err := s.deps.Orders.SnackMenu(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if menu == nil {
		menu = []backend.SnackItem{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": menu})
}
