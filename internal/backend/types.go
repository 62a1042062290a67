package backend

import "time"

// Store is the store document returned by getStoreByNumber.
type Store struct {
	ID            string   `json:"_id,omitempty"`
	StoreNumber   string   `json:"storeNumber,omitempty"`
	Name          string   `json:"name,omitempty"`
	IsCafeEnabled bool     `json:"isCafeEnabled"`
	Screens       []Screen `json:"screens"`
}

// Screen is a physical station hosting games.
type Screen struct {
	ScreenName string `json:"screenName"`
	Games      []Game `json:"games"`
}

// Game carries the pricing table keyed by hour string, then player count string.
type Game struct {
	GameName       string                        `json:"gameName"`
	AllowedPlayers int                           `json:"allowedPlayers"`
	Pricing        map[string]map[string]float64 `json:"pricing"`
}

// BookingRecord is an active booking as stored by the backend.
type BookingRecord struct {
	ID                string  `json:"_id"`
	Name              string  `json:"name"`
	Phone             string  `json:"phone"`
	Screen            string  `json:"screen"`
	Game              string  `json:"game,omitempty"`
	Duration          int     `json:"duration"`
	Players           int     `json:"players"`
	NonPlayingMembers int     `json:"nonPlayingMembers"`
	Paid              float64 `json:"paid"`
	Snacks            float64 `json:"snacks"`
	TotalAmount       float64 `json:"total_amount"`
	Payment           string  `json:"payment"`
	Status            string  `json:"status"`
	ExtendedTime      int     `json:"extended_time"`
	ExtendedAmount    float64 `json:"extended_amount"`
	ExtraSnacksPrice  float64 `json:"extraSnacksPrice"`
	RemainingAmount   float64 `json:"remainingAmount"`
	CouponDetails     *Coupon `json:"couponDetails,omitempty"`
}

// CreateBookingRequest is the body of POST /customers/add.
type CreateBookingRequest struct {
	Name              string  `json:"name"`
	Phone             string  `json:"phone"`
	Screen            string  `json:"screen"`
	Game              string  `json:"game"`
	Time              int     `json:"time"`
	Snacks            float64 `json:"snacks"`
	Paid              float64 `json:"paid"`
	Players           int     `json:"players"`
	NonPlayingMembers int     `json:"nonPlayingMembers"`
	TotalAmount       float64 `json:"total_amount"`
	Payment           string  `json:"payment"`
	Store             string  `json:"store"`
	Discount          string  `json:"discount"`
	RemainingAmount   float64 `json:"remainingAmount"`
	CouponDetails     *Coupon `json:"couponDetails,omitempty"`
}

// BookingUpdate is a partial update; nil fields are not sent.
type BookingUpdate struct {
	ExtendedTime     *int     `json:"extended_time,omitempty"`
	ExtendedAmount   *float64 `json:"extended_amount,omitempty"`
	ExtraSnacksPrice *float64 `json:"extraSnacksPrice,omitempty"`
}

// Coupon as returned by getCoupon.
type Coupon struct {
	Code         string      `json:"code"`
	DiscountType string      `json:"discountType"`
	Value        float64     `json:"value"`
	StartDate    *time.Time  `json:"startDate,omitempty"`
	ExpiresAt    *time.Time  `json:"expiresAt,omitempty"`
	IsExpired    bool        `json:"isExpired"`
	Used         bool        `json:"used"`
	Store        string      `json:"store,omitempty"`
	FreeSnacks   []FreeSnack `json:"freeSnacks,omitempty"`
}

// FreeSnack is a line granted by a coupon.
type FreeSnack struct {
	SnackName     string `json:"snackName"`
	SnackQuantity int    `json:"snackQuantity"`
}

// DailyDiscount is the store-scoped discount of the day. Zero value means none.
type DailyDiscount struct {
	Store         string  `json:"store,omitempty"`
	DiscountType  string  `json:"discountType,omitempty"`
	DiscountValue float64 `json:"discountValue,omitempty"`
}

// Customer is an autocomplete suggestion.
type Customer struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SnackItem is an entry of the snacks and drinks catalog.
type SnackItem struct {
	ID       string  `json:"_id,omitempty"`
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
}

// OrderItem is a snack line sent to the cafe order log.
type OrderItem struct {
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// GamezoneOrder is the body of POST /orders/gamezone.
type GamezoneOrder struct {
	CustomerName string      `json:"customerName"`
	Phone        string      `json:"phone"`
	ScreenNumber string      `json:"screenNumber"`
	Items        []OrderItem `json:"items"`
}

// ActivityEvent is an audit event for log-activity-save.
type ActivityEvent struct {
	Action  string `json:"action"`
	Details any    `json:"details"`
}

// Transaction types of a ledger entry.
const (
	TransactionCredit = "credit"
	TransactionDebit  = "debit"
)

// LedgerEntry is a single credit or debit.
type LedgerEntry struct {
	ID              string    `json:"_id,omitempty"`
	Date            time.Time `json:"date"`
	Time            string    `json:"time,omitempty"`
	Description     string    `json:"description"`
	Amount          float64   `json:"amount"`
	TransactionType string    `json:"transactionType"`
	BookingID       string    `json:"bookingId,omitempty"`
}

// Ledger is a customer's account.
type Ledger struct {
	ID           string        `json:"_id"`
	Name         string        `json:"name"`
	Phone        string        `json:"phone"`
	Transactions []LedgerEntry `json:"transactions"`
}

// Staff is the authenticated staff member.
type Staff struct {
	ID       string `json:"_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Store    string `json:"store"`
}

// LoginResponse is returned by POST /auth/login.
type LoginResponse struct {
	Token string `json:"token"`
	Staff Staff  `json:"staff"`
}
