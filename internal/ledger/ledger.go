// Package ledger reads customer ledgers, records entries and renders
// statements with a running balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gamezone/internal/backend"
	"gamezone/shared/audit"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	ErrLedgerNotFound = errors.New("ledger not found")
	ErrInvalidEntry   = errors.New("invalid ledger entry")
)

// Line is an entry with the balance after it.
type Line struct {
	backend.LedgerEntry
	Balance float64 `json:"balance"`
}

// Statement is a ledger in date order with running balances.
type Statement struct {
	LedgerID string  `json:"ledgerId"`
	Name     string  `json:"name"`
	Phone    string  `json:"phone"`
	Lines    []Line  `json:"lines"`
	Credits  float64 `json:"credits"`
	Debits   float64 `json:"debits"`
	Balance  float64 `json:"balance"`
}

func signed(e backend.LedgerEntry) float64 {
	if strings.EqualFold(e.TransactionType, backend.TransactionDebit) {
		return -e.Amount
	}
	return e.Amount
}

// Balance is credits minus debits.
func Balance(entries []backend.LedgerEntry) float64 {
	var total float64
	for _, e := range entries {
		total += signed(e)
	}
	return total
}

// BuildStatement orders the entries by date, keeping the original order of
// same-date entries, and accumulates the balance.
func BuildStatement(l backend.Ledger) Statement {
	entries := append([]backend.LedgerEntry(nil), l.Transactions...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })

	st := Statement{LedgerID: l.ID, Name: l.Name, Phone: l.Phone, Lines: make([]Line, 0, len(entries))}
	for _, e := range entries {
		if strings.EqualFold(e.TransactionType, backend.TransactionDebit) {
			st.Debits += e.Amount
		} else {
			st.Credits += e.Amount
		}
		st.Balance += signed(e)
		st.Lines = append(st.Lines, Line{LedgerEntry: e, Balance: st.Balance})
	}
	return st
}

// Summary is a ledger row of the customer list.
type Summary struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Entries int     `json:"entries"`
	Balance float64 `json:"balance"`
}

// EntryRequest is a manual ledger entry.
type EntryRequest struct {
	Description     string     `json:"description" validate:"required"`
	Amount          float64    `json:"amount" validate:"gt=0"`
	TransactionType string     `json:"transactionType" validate:"required,oneof=credit debit"`
	Date            *time.Time `json:"date,omitempty"`
}

// Backend is the ledger part of the backend API.
type Backend interface {
	Ledgers(ctx context.Context) ([]backend.Ledger, error)
	AddLedgerEntry(ctx context.Context, ledgerID string, entry backend.LedgerEntry) (*backend.Ledger, error)
}

// Service works with customer ledgers.
type Service struct {
	api      Backend
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a ledger service.
func NewService(api Backend, logger *zerolog.Logger) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "ledger").Logger()
	}
	return &Service{api: api, validate: validator.New(), logger: l, now: time.Now}
}

// List returns every ledger with its balance, by name.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	ledgers, err := s.api.Ledgers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch ledgers: %w", err)
	}
	out := make([]Summary, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, Summary{
			ID:      l.ID,
			Name:    l.Name,
			Phone:   l.Phone,
			Entries: len(l.Transactions),
			Balance: Balance(l.Transactions),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// Statement returns the statement of one ledger.
func (s *Service) Statement(ctx context.Context, id string) (Statement, error) {
	ledgers, err := s.api.Ledgers(ctx)
	if err != nil {
		return Statement{}, fmt.Errorf("fetch ledgers: %w", err)
	}
	for _, l := range ledgers {
		if l.ID == id {
			return BuildStatement(l), nil
		}
	}
	return Statement{}, ErrLedgerNotFound
}

// AddEntry records a manual credit or debit and returns the new statement.
func (s *Service) AddEntry(ctx context.Context, id string, req EntryRequest) (Statement, error) {
	req.Description = strings.TrimSpace(req.Description)
	req.TransactionType = strings.ToLower(strings.TrimSpace(req.TransactionType))
	if err := s.validate.Struct(req); err != nil {
		return Statement{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	date := s.now()
	if req.Date != nil && !req.Date.IsZero() {
		date = *req.Date
	}
	l, err := s.api.AddLedgerEntry(ctx, id, backend.LedgerEntry{
		Date:            date,
		Time:            date.Format("15:04"),
		Description:     req.Description,
		Amount:          req.Amount,
		TransactionType: req.TransactionType,
	})
	if err != nil {
		return Statement{}, fmt.Errorf("add ledger entry: %w", err)
	}
	s.logger.Info().
		Str("ledger_id", id).
		Str("type", req.TransactionType).
		Float64("amount", req.Amount).
		Msg("ledger entry added")
	if l == nil {
		return s.Statement(ctx, id)
	}
	return BuildStatement(*l), nil
}

// ExportStatement writes st as a workbook to out.
func ExportStatement(st Statement, w audit.ExcelWriter, out io.Writer) error {
	defer w.Close()

	sheet := st.Name
	if sheet == "" {
		sheet = "statement"
	}
	if err := w.AddSheet(sheet); err != nil {
		return err
	}
	if err := w.WriteHeader([]string{"Date", "Time", "Description", "Type", "Amount", "Balance"}); err != nil {
		return err
	}
	for _, l := range st.Lines {
		row := []interface{}{
			l.Date.Format("2006-01-02"),
			l.Time,
			l.Description,
			l.TransactionType,
			l.Amount,
			l.Balance,
		}
		if err := w.WriteRow(row); err != nil {
			return err
		}
	}
	if err := w.WriteRow([]interface{}{"", "", "Total credits", "", st.Credits, ""}); err != nil {
		return err
	}
	if err := w.WriteRow([]interface{}{"", "", "Total debits", "", st.Debits, ""}); err != nil {
		return err
	}
	if err := w.WriteRow([]interface{}{"", "", "Balance", "", st.Balance, ""}); err != nil {
		return err
	}
	return w.Save(out)
}
