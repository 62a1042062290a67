// Package pricing computes session prices, discounts and booking quotes.
package pricing

import (
	"fmt"
	"strings"
)

// Policy decides what happens to a trailing 30 minutes without a listed rate.
type Policy int

const (
	// Strict prices the whole duration at 0.
	Strict Policy = iota
	// Lenient keeps the total of the 60-minute blocks.
	Lenient
)

// ParsePolicy parses "strict" or "lenient"; empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "lenient":
		return Lenient, nil
	default:
		return Strict, fmt.Errorf("unknown pricing policy %q", s)
	}
}

func (p Policy) String() string {
	if p == Lenient {
		return "lenient"
	}
	return "strict"
}

// RateTable is the price lookup the engine needs.
type RateTable interface {
	ResolveGame(name string) (string, bool)
	Rate(game string, minutes, players int) (float64, bool)
}

// Engine prices sessions against a rate table using one policy.
type Engine struct {
	table  RateTable
	policy Policy
}

// NewEngine creates an engine.
func NewEngine(table RateTable, policy Policy) *Engine {
	return &Engine{table: table, policy: policy}
}

// Policy returns the configured policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Price returns the price of playing game for minutes with players.
// It returns 0 whenever no applicable rate exists.
func (e *Engine) Price(game string, minutes, players int) float64 {
	if e == nil || e.table == nil || minutes <= 0 || players <= 0 {
		return 0
	}
	resolved, ok := e.table.ResolveGame(game)
	if !ok {
		return 0
	}
	if minutes%30 != 0 {
		return 0
	}

	var total float64
	for i := 0; i < minutes/60; i++ {
		rate, ok := e.table.Rate(resolved, 60, players)
		if !ok {
			return 0
		}
		total += rate
	}

	if minutes%60 == 30 {
		rate, ok := e.table.Rate(resolved, 30, players)
		switch {
		case ok:
			total += rate
		case e.policy == Strict:
			return 0
		}
	}
	return total
}
