package pricing

import (
	"testing"
	"time"

	"gamezone/internal/backend"

	"github.com/stretchr/testify/assert"
)

type fakeTable struct {
	games map[string]string
	rates map[string]map[int]map[int]float64
}

func (f fakeTable) ResolveGame(name string) (string, bool) {
	g, ok := f.games[name]
	return g, ok
}

func (f fakeTable) Rate(game string, minutes, players int) (float64, bool) {
	p, ok := f.rates[game][minutes][players]
	return p, ok
}

func vrTable() fakeTable {
	return fakeTable{
		games: map[string]string{"VR": "VR", "vr": "VR", "PS5": "PS5"},
		rates: map[string]map[int]map[int]float64{
			"VR":  {60: {2: 500, 1: 300}, 30: {2: 300}},
			"PS5": {60: {1: 150}},
		},
	}
}

func TestEnginePrice(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		game    string
		minutes int
		players int
		want    float64
	}{
		{"ninety minutes two players", Strict, "VR", 90, 2, 800},
		{"case insensitive game", Strict, "vr", 60, 2, 500},
		{"two hours", Strict, "VR", 120, 2, 1000},
		{"half hour only", Strict, "VR", 30, 2, 300},
		{"unknown game", Strict, "Pool", 60, 2, 0},
		{"not a multiple of thirty", Strict, "VR", 45, 2, 0},
		{"not a multiple of thirty lenient", Lenient, "VR", 75, 2, 0},
		{"missing hour rate", Strict, "VR", 60, 3, 0},
		{"missing half hour rate strict", Strict, "VR", 90, 1, 0},
		{"missing half hour rate lenient", Lenient, "VR", 90, 1, 300},
		{"missing half hour rate only lenient", Lenient, "PS5", 30, 1, 0},
		{"zero minutes", Strict, "VR", 0, 2, 0},
		{"zero players", Strict, "VR", 60, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(vrTable(), tt.policy)
			assert.Equal(t, tt.want, e.Price(tt.game, tt.minutes, tt.players))
		})
	}
}

func TestEnginePriceDecomposes(t *testing.T) {
	e := NewEngine(vrTable(), Strict)
	for minutes := 30; minutes <= 600; minutes += 30 {
		want := float64(minutes/60) * 500
		if minutes%60 == 30 {
			want += 300
		}
		assert.Equal(t, want, e.Price("VR", minutes, 2), "minutes=%d", minutes)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	assert.NoError(t, err)
	assert.Equal(t, Strict, p)

	p, err = ParsePolicy("Lenient")
	assert.NoError(t, err)
	assert.Equal(t, Lenient, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestDiscountApply(t *testing.T) {
	tests := []struct {
		name       string
		discount   Discount
		price      float64
		wantFinal  float64
		wantAmount float64
	}{
		{"none", None, 800, 800, 0},
		{"ten percent", Discount{Kind: KindPercent, Value: 10}, 800, 720, 80},
		{"flat", Discount{Kind: KindFlat, Value: 100}, 800, 700, 100},
		{"flat floors at zero", Discount{Kind: KindFlat, Value: 1000}, 800, 0, 800},
		{"percent over hundred floors at zero", Discount{Kind: KindPercent, Value: 150}, 200, 0, 200},
		{"zero price", Discount{Kind: KindFlat, Value: 100}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final, amount := tt.discount.Apply(tt.price)
			assert.Equal(t, tt.wantFinal, final)
			assert.Equal(t, tt.wantAmount, amount)
		})
	}
}

func TestValidateCoupon(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	tests := []struct {
		name   string
		coupon *backend.Coupon
		want   error
	}{
		{"valid", &backend.Coupon{Code: "A", DiscountType: "flat", Value: 100, StartDate: &past, ExpiresAt: &future, Store: "42"}, nil},
		{"nil", nil, ErrCouponInvalid},
		{"unknown type", &backend.Coupon{DiscountType: "bogo", Value: 1}, ErrCouponInvalid},
		{"expired flag", &backend.Coupon{DiscountType: "flat", Value: 1, IsExpired: true}, ErrCouponExpired},
		{"expired date", &backend.Coupon{DiscountType: "flat", Value: 1, ExpiresAt: &past}, ErrCouponExpired},
		{"not active yet", &backend.Coupon{DiscountType: "flat", Value: 1, StartDate: &future}, ErrCouponNotActive},
		{"used", &backend.Coupon{DiscountType: "percentage", Value: 5, Used: true}, ErrCouponUsed},
		{"other store", &backend.Coupon{DiscountType: "percentage", Value: 5, Store: "7"}, ErrCouponWrongStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateCoupon(tt.coupon, "42", now))
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	now := time.Now()
	daily := &backend.DailyDiscount{Store: "42", DiscountType: "percent", DiscountValue: 10}
	coupon := &backend.Coupon{Code: "FLAT100", DiscountType: "flat", Value: 100}

	t.Run("daily only", func(t *testing.T) {
		d := Resolve(nil, daily, "42", now)
		assert.Equal(t, KindPercent, d.Kind)
		assert.Equal(t, SourceDaily, d.Source)
		assert.Equal(t, "10% OFF", d.Label)
		final, amount := d.Apply(800)
		assert.Equal(t, 720.0, final)
		assert.Equal(t, 80.0, amount)
	})

	t.Run("coupon wins over daily", func(t *testing.T) {
		d := Resolve(coupon, daily, "42", now)
		assert.Equal(t, SourceCoupon, d.Source)
		assert.Equal(t, "FLAT100", d.Code)
		final, _ := d.Apply(800)
		assert.Equal(t, 700.0, final)
	})

	t.Run("invalid coupon falls back to daily", func(t *testing.T) {
		used := *coupon
		used.Used = true
		d := Resolve(&used, daily, "42", now)
		assert.Equal(t, SourceDaily, d.Source)
	})

	t.Run("daily for another store is ignored", func(t *testing.T) {
		d := Resolve(nil, &backend.DailyDiscount{Store: "7", DiscountType: "fixed", DiscountValue: 50}, "42", now)
		assert.Equal(t, None, d)
	})

	t.Run("fixed daily label", func(t *testing.T) {
		d := Resolve(nil, &backend.DailyDiscount{Store: "42", DiscountType: "fixed", DiscountValue: 50}, "42", now)
		assert.Equal(t, KindFlat, d.Kind)
		assert.Equal(t, "₹50 OFF", d.Label)
	})

	t.Run("empty daily", func(t *testing.T) {
		assert.Equal(t, None, Resolve(nil, &backend.DailyDiscount{}, "42", now))
	})
}

func TestCouponDiscountLabel(t *testing.T) {
	d := CouponDiscount(&backend.Coupon{
		Code:         "SNACK",
		DiscountType: "percentage",
		Value:        15,
		FreeSnacks:   []backend.FreeSnack{{SnackName: "Coke", SnackQuantity: 2}},
	})
	assert.Equal(t, "Coupon Applied - 15% off + Free: Coke (x2)", d.Label)
}

func TestQuote(t *testing.T) {
	e := NewEngine(vrTable(), Strict)

	tests := []struct {
		name     string
		draft    Draft
		discount Discount
		want     Quote
	}{
		{
			name:  "paid with snacks and spectators",
			draft: Draft{Game: "VR", DurationMinutes: 90, Players: 2, NonPlayingMembers: 2, SnackTotal: 120, Payment: PaymentCash, CafeEnabled: true},
			want:  Quote{BasePrice: 800, Price: 800, SnackAmount: 120, SeatingCharge: 40, Total: 960, Discount: None},
		},
		{
			name:     "unpaid with discount",
			draft:    Draft{Game: "VR", DurationMinutes: 90, Players: 2, Payment: PaymentUnpaid},
			discount: Discount{Kind: KindPercent, Value: 10},
			want:     Quote{BasePrice: 800, DiscountAmount: 80, Price: 720, Total: 720, Remaining: 720, Discount: Discount{Kind: KindPercent, Value: 10}},
		},
		{
			name:  "cafe disabled ignores snacks",
			draft: Draft{Game: "VR", DurationMinutes: 60, Players: 2, SnackTotal: 99, Payment: PaymentOnline},
			want:  Quote{BasePrice: 500, Price: 500, Total: 500, Discount: None},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.discount
			if d.Kind == "" {
				d = None
			}
			assert.Equal(t, tt.want, e.Quote(tt.draft, d))
		})
	}

	q := e.Quote(Draft{Game: "Pool", DurationMinutes: 60, Players: 1}, None)
	assert.True(t, q.PricingUnavailable())
}
