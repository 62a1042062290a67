// Package catalog turns a store document into screen, game and price lookups.
package catalog

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gamezone/internal/backend"
)

// ErrNoStore is returned when the session carries no store id.
var ErrNoStore = errors.New("catalog: no store selected")

// Catalog is an immutable lookup view over a store document.
type Catalog struct {
	CafeEnabled bool

	screens        []string
	screenNames    map[string]string
	screenToGame   map[string]string
	gameNames      map[string]string
	prices         map[string]map[int]map[int]float64
	allowedPlayers map[string]int
}

// Build indexes a store document. A nil store yields an empty catalog.
func Build(store *backend.Store) *Catalog {
	c := &Catalog{
		screenNames:    make(map[string]string),
		screenToGame:   make(map[string]string),
		gameNames:      make(map[string]string),
		prices:         make(map[string]map[int]map[int]float64),
		allowedPlayers: make(map[string]int),
	}
	if store == nil {
		return c
	}
	c.CafeEnabled = store.IsCafeEnabled

	for _, screen := range store.Screens {
		key := normalize(screen.ScreenName)
		if key == "" {
			continue
		}
		if _, dup := c.screenNames[key]; !dup {
			c.screens = append(c.screens, screen.ScreenName)
			c.screenNames[key] = screen.ScreenName
		}
		for i, game := range screen.Games {
			gkey := normalize(game.GameName)
			if gkey == "" {
				continue
			}
			// a screen hosts one game; the first listed wins
			if i == 0 {
				c.screenToGame[key] = game.GameName
			}
			if _, seen := c.gameNames[gkey]; !seen {
				c.gameNames[gkey] = game.GameName
			}
			if game.AllowedPlayers > c.allowedPlayers[gkey] {
				c.allowedPlayers[gkey] = game.AllowedPlayers
			}
			c.addPricing(gkey, game.Pricing)
		}
	}
	return c
}

func (c *Catalog) addPricing(game string, pricing map[string]map[string]float64) {
	table, ok := c.prices[game]
	if !ok {
		table = make(map[int]map[int]float64)
		c.prices[game] = table
	}
	for hours, byPlayers := range pricing {
		minutes, ok := hoursToMinutes(hours)
		if !ok {
			continue
		}
		row, ok := table[minutes]
		if !ok {
			row = make(map[int]float64)
			table[minutes] = row
		}
		for playersKey, price := range byPlayers {
			players, err := strconv.Atoi(strings.TrimSpace(playersKey))
			if err != nil || players <= 0 {
				continue
			}
			row[players] = price
		}
	}
}

func hoursToMinutes(s string) (int, bool) {
	h, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || h <= 0 {
		return 0, false
	}
	return int(math.Round(h * 60)), true
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Screens returns the store's screen names in document order.
func (c *Catalog) Screens() []string {
	return append([]string(nil), c.screens...)
}

// Permits reports whether screen belongs to the store.
func (c *Catalog) Permits(screen string) bool {
	_, ok := c.screenNames[normalize(screen)]
	return ok
}

// GameForScreen returns the game hosted on screen.
func (c *Catalog) GameForScreen(screen string) (string, bool) {
	g, ok := c.screenToGame[normalize(screen)]
	return g, ok
}

// ResolveGame maps a screen name or game name to the canonical game name.
func (c *Catalog) ResolveGame(name string) (string, bool) {
	key := normalize(name)
	if g, ok := c.screenToGame[key]; ok {
		return g, true
	}
	g, ok := c.gameNames[key]
	return g, ok
}

// Rate returns the listed price for a game, duration block and player count.
func (c *Catalog) Rate(game string, minutes, players int) (float64, bool) {
	table, ok := c.prices[normalize(game)]
	if !ok {
		return 0, false
	}
	row, ok := table[minutes]
	if !ok {
		return 0, false
	}
	price, ok := row[players]
	return price, ok
}

// Durations lists the priced durations of a game in minutes, ascending.
func (c *Catalog) Durations(game string) []int {
	table := c.prices[normalize(game)]
	out := make([]int, 0, len(table))
	for m := range table {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}

// AllowedPlayers returns 1..allowedPlayers for game.
func (c *Catalog) AllowedPlayers(game string) []int {
	n := c.allowedPlayers[normalize(game)]
	out := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, i)
	}
	return out
}

// MaxPlayers returns the allowed player bound of game, 0 when unknown.
func (c *Catalog) MaxPlayers(game string) int {
	return c.allowedPlayers[normalize(game)]
}

// StoreSource fetches store documents.
type StoreSource interface {
	GetStore(ctx context.Context, storeID string) (*backend.Store, error)
}

// StoreIDSource provides the current store id.
type StoreIDSource interface {
	StoreID() string
}

// Resolver fetches the store document once per session and caches the catalog.
type Resolver struct {
	source StoreSource
	ids    StoreIDSource

	mu      sync.Mutex
	storeID string
	current *Catalog
}

// NewResolver creates a resolver.
func NewResolver(source StoreSource, ids StoreIDSource) *Resolver {
	return &Resolver{source: source, ids: ids}
}

// Load returns the cached catalog or fetches it for the session's store.
func (r *Resolver) Load(ctx context.Context) (*Catalog, error) {
	storeID := r.ids.StoreID()
	if storeID == "" {
		return nil, ErrNoStore
	}

	r.mu.Lock()
	if r.current != nil && r.storeID == storeID {
		c := r.current
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	store, err := r.source.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	c := Build(store)

	r.mu.Lock()
	r.storeID = storeID
	r.current = c
	r.mu.Unlock()
	return c, nil
}

// Invalidate drops the cached catalog.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
	r.storeID = ""
}
