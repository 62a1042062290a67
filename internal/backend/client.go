// Package backend is the HTTP client of the gamezone REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gamezone/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrUnauthorized is returned when the backend rejects the bearer token.
var ErrUnauthorized = errors.New("backend: unauthorized")

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Unwrap maps 401 to ErrUnauthorized.
func (e *HTTPError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// TokenSource provides the current bearer token.
type TokenSource interface {
	Token() string
}

// Client calls the gamezone backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration

	onUnauthorized func()
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "backend").Logger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     l,
	}
}

// UseRedisCache configures optional Redis caching for catalog GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit limits outgoing requests to rps with the given burst.
func (c *Client) UseRateLimit(rps float64, burst int) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// OnUnauthorized registers a hook run whenever the backend answers 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// Login exchanges staff credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "login", "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("backend: login returned no token")
	}
	return &resp, nil
}

// GetStore fetches the store document by store id.
func (c *Client) GetStore(ctx context.Context, storeID string) (*Store, error) {
	cacheKey := "gamezone:store:" + storeID
	var store Store
	if c.readCache(ctx, cacheKey, &store) {
		return &store, nil
	}
	path := "/customers/getStoreByNumber/" + url.PathEscape(storeID)
	if err := c.doJSON(ctx, http.MethodGet, "get_store", path, nil, &store); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, store)
	return &store, nil
}

// ActiveScreens returns the names of currently occupied screens.
func (c *Client) ActiveScreens(ctx context.Context) ([]string, error) {
	var screens []string
	if err := c.doJSON(ctx, http.MethodGet, "active_screens", "/customers/active-screens", nil, &screens); err != nil {
		return nil, err
	}
	return screens, nil
}

// ActiveBookings lists active bookings on the given screens.
func (c *Client) ActiveBookings(ctx context.Context, screens []string) ([]BookingRecord, error) {
	q := url.Values{}
	for _, s := range screens {
		q.Add("screens", s)
	}
	path := "/customers/active"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var records []BookingRecord
	if err := c.doJSON(ctx, http.MethodGet, "active_bookings", path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CreateBooking creates a booking.
func (c *Client) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingRecord, error) {
	var rec BookingRecord
	if err := c.doJSON(ctx, http.MethodPost, "create_booking", "/customers/add", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateBooking applies a partial update to a booking.
func (c *Client) UpdateBooking(ctx context.Context, id string, upd BookingUpdate) error {
	path := "/customers/update/" + url.PathEscape(id)
	return c.doJSON(ctx, http.MethodPut, "update_booking", path, upd, nil)
}

// SetBookingStatus changes the booking status, e.g. to "stopped".
func (c *Client) SetBookingStatus(ctx context.Context, id, status string) error {
	path := "/customers/status/" + url.PathEscape(id)
	return c.doJSON(ctx, http.MethodPatch, "booking_status", path, map[string]string{"status": status}, nil)
}

// LogActivity records an audit event.
func (c *Client) LogActivity(ctx context.Context, event ActivityEvent) error {
	return c.doJSON(ctx, http.MethodPost, "log_activity", "/customers/log-activity-save", event, nil)
}

// TodayDiscount returns today's daily discount of storeID; a zero value when
// none is set. The backend picks the store from the token.
func (c *Client) TodayDiscount(ctx context.Context, storeID string) (*DailyDiscount, error) {
	cacheKey := "gamezone:discount:" + storeID + ":" + time.Now().Format("2006-01-02")
	var d DailyDiscount
	if c.readCache(ctx, cacheKey, &d) {
		return &d, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, "today_discount", "/admin/discounts/today", nil, &d); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, d)
	return &d, nil
}

// CouponLookupError is a coupon lookup the backend answered with success=false.
type CouponLookupError struct {
	Message string
}

func (e *CouponLookupError) Error() string {
	if e.Message == "" {
		return "invalid coupon"
	}
	return e.Message
}

// GetCoupon looks a coupon up by code.
func (c *Client) GetCoupon(ctx context.Context, code string) (*Coupon, error) {
	var wrap struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		Data    *Coupon `json:"data"`
	}
	path := "/admin/discounts/getCoupon/" + url.PathEscape(code)
	if err := c.doJSON(ctx, http.MethodGet, "get_coupon", path, nil, &wrap); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return nil, &CouponLookupError{Message: httpErr.Message}
		}
		return nil, err
	}
	if !wrap.Success || wrap.Data == nil {
		return nil, &CouponLookupError{Message: wrap.Message}
	}
	return wrap.Data, nil
}

// MarkCouponUsed consumes a coupon.
func (c *Client) MarkCouponUsed(ctx context.Context, code string) error {
	path := "/admin/discounts/markUsed/" + url.PathEscape(code)
	return c.doJSON(ctx, http.MethodPatch, "mark_coupon_used", path, nil, nil)
}

// SearchCustomers returns name/phone suggestions.
func (c *Client) SearchCustomers(ctx context.Context, query string) ([]Customer, error) {
	path := "/customers/search?query=" + url.QueryEscape(query)
	var customers []Customer
	if err := c.doJSON(ctx, http.MethodGet, "search_customers", path, nil, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

// SnacksAndDrinks returns the cafe catalog of storeID.
func (c *Client) SnacksAndDrinks(ctx context.Context, storeID string) ([]SnackItem, error) {
	cacheKey := "gamezone:snacks:" + storeID
	var items []SnackItem
	if c.readCache(ctx, cacheKey, &items) {
		return items, nil
	}
	if err := c.doJSON(ctx, http.MethodGet, "snacks", "/customers/snacksAndDrinks", nil, &items); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, items)
	return items, nil
}

// RecordGamezoneOrder logs snack lines for cafe fulfilment.
func (c *Client) RecordGamezoneOrder(ctx context.Context, order GamezoneOrder) error {
	return c.doJSON(ctx, http.MethodPost, "gamezone_order", "/orders/gamezone", order, nil)
}

// Ledgers lists all customer ledgers.
func (c *Client) Ledgers(ctx context.Context) ([]Ledger, error) {
	var ledgers []Ledger
	if err := c.doJSON(ctx, http.MethodGet, "ledgers", "/ledgers", nil, &ledgers); err != nil {
		return nil, err
	}
	return ledgers, nil
}

// AddLedgerEntry appends an entry to the ledger with the given id.
func (c *Client) AddLedgerEntry(ctx context.Context, ledgerID string, entry LedgerEntry) (*Ledger, error) {
	var ledger Ledger
	path := "/ledgers/" + url.PathEscape(ledgerID) + "/addentry"
	if err := c.doJSON(ctx, http.MethodPost, "ledger_add_entry", path, entry, &ledger); err != nil {
		return nil, err
	}
	return &ledger, nil
}

// AddLedgerTransaction appends an entry to the ledger of the customer with phone.
func (c *Client) AddLedgerTransaction(ctx context.Context, phone string, entry LedgerEntry) error {
	path := "/ledgers/" + url.PathEscape(phone) + "/transaction"
	return c.doJSON(ctx, http.MethodPost, "ledger_transaction", path, entry, nil)
}

// HealthCheck checks that the backend answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (c *Client) doJSON(ctx context.Context, method, name, path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return c.do(req, name, out)
}

func (c *Client) do(req *http.Request, name string, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveBackendRequest(name, "error", time.Since(start))
		return fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()
	metrics.ObserveBackendRequest(name, strconv.Itoa(resp.StatusCode), time.Since(start))

	if resp.StatusCode >= 300 {
		httpErr := &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.logger.Warn().
			Str("endpoint", name).
			Int("status", resp.StatusCode).
			Str("request_id", req.Header.Get("X-Request-ID")).
			Msg("backend request failed")
		// a rejected login must not end the session already in place
		if resp.StatusCode == http.StatusUnauthorized && name != "login" && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return httpErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.tokens == nil {
		return
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	return strings.TrimSpace(string(data))
}
