// Package google mirrors stopped bookings into a Google spreadsheet.
package google

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"gamezone/internal/models"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var stopHeader = []interface{}{
	"Booking ID", "Store", "Staff", "Customer", "Phone", "Screen", "Game",
	"Minutes", "Players", "First game price", "Extended minutes", "Extended amount",
	"Extra snacks", "Remaining", "Mode", "Ledger debit", "Stopped at",
}

const lastColumn = "Q"

// values is the slice of the Sheets API the service uses.
type values interface {
	Append(ctx context.Context, rng string, rows [][]interface{}) (string, error)
	Update(ctx context.Context, rng string, rows [][]interface{}) error
	Get(ctx context.Context, rng string) ([][]interface{}, error)
}

type sheetsValues struct {
	srv           *sheets.Service
	spreadsheetID string
}

func (v sheetsValues) Append(ctx context.Context, rng string, rows [][]interface{}) (string, error) {
	resp, err := v.srv.Spreadsheets.Values.Append(v.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

func (v sheetsValues) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	_, err := v.srv.Spreadsheets.Values.Update(v.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

func (v sheetsValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := v.srv.Spreadsheets.Values.Get(v.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// SheetsService appends one row per stopped booking.
type SheetsService struct {
	values values
	sheet  string
	logger zerolog.Logger

	mu       sync.Mutex
	rowCache map[string]int
}

// NewSheetsService authenticates with a service account file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheet string, logger *zerolog.Logger) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return newSheetsService(sheetsValues{srv: srv, spreadsheetID: spreadsheetID}, sheet, logger), nil
}

func newSheetsService(v values, sheet string, logger *zerolog.Logger) *SheetsService {
	if sheet == "" {
		sheet = "Stops"
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sheets").Logger()
	}
	return &SheetsService{values: v, sheet: sheet, logger: l, rowCache: make(map[string]int)}
}

// EnsureHeader writes the header row into an empty sheet.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	rows, err := s.values.Get(ctx, fmt.Sprintf("%s!A1:%s1", s.sheet, lastColumn))
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		return nil
	}
	return s.values.Update(ctx, fmt.Sprintf("%s!A1:%s1", s.sheet, lastColumn), [][]interface{}{stopHeader})
}

// AppendStop writes rec. A booking already written is overwritten in place.
func (s *SheetsService) AppendStop(ctx context.Context, rec models.StopRecord) error {
	row := [][]interface{}{stopRowValues(rec)}

	if n, ok := s.getCachedRow(rec.BookingID); ok {
		rng := fmt.Sprintf("%s!A%d:%s%d", s.sheet, n, lastColumn, n)
		if err := s.values.Update(ctx, rng, row); err != nil {
			s.deleteCacheRow(rec.BookingID)
			return fmt.Errorf("update stop row: %w", err)
		}
		return nil
	}

	updated, err := s.values.Append(ctx, fmt.Sprintf("%s!A:%s", s.sheet, lastColumn), row)
	if err != nil {
		return fmt.Errorf("append stop row: %w", err)
	}
	if n, ok := rowFromRange(updated); ok {
		s.setCachedRow(rec.BookingID, n)
	}
	s.logger.Debug().Str("booking_id", rec.BookingID).Str("range", updated).Msg("stop mirrored")
	return nil
}

func stopRowValues(r models.StopRecord) []interface{} {
	return []interface{}{
		r.BookingID,
		r.StoreID,
		r.StaffName,
		r.CustomerName,
		r.Phone,
		r.Screen,
		r.Game,
		r.TotalMinutes,
		r.Players,
		r.FirstGamePrice,
		r.ExtendedMinutes,
		r.ExtendedAmount,
		r.ExtraSnacksTotal,
		r.RemainingAmount,
		r.Mode,
		r.LedgerDebit,
		r.StoppedAt.Format("2006-01-02 15:04:05"),
	}
}

var rangeRow = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number of a range like "Stops!A5:Q5".
func rowFromRange(rng string) (int, bool) {
	m := rangeRow.FindStringSubmatch(rng)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *SheetsService) getCachedRow(bookingID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rowCache[bookingID]
	return n, ok
}

func (s *SheetsService) setCachedRow(bookingID string, row int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache[bookingID] = row
}

func (s *SheetsService) deleteCacheRow(bookingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rowCache, bookingID)
}

// ClearCache forgets every known row.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]int)
}
