package google

import (
	"context"
	"testing"
	"time"

	"gamezone/internal/models"
)

type fakeValues struct {
	appended [][]interface{}
	updated  map[string][][]interface{}
	existing [][]interface{}
	next     int
}

func (f *fakeValues) Append(_ context.Context, rng string, rows [][]interface{}) (string, error) {
	f.appended = append(f.appended, rows...)
	f.next++
	return "Stops!A" + string(rune('0'+f.next)) + ":Q" + string(rune('0'+f.next)), nil
}

func (f *fakeValues) Update(_ context.Context, rng string, rows [][]interface{}) error {
	if f.updated == nil {
		f.updated = make(map[string][][]interface{})
	}
	f.updated[rng] = rows
	return nil
}

func (f *fakeValues) Get(context.Context, string) ([][]interface{}, error) {
	return f.existing, nil
}

func TestStopRowValues(t *testing.T) {
	at := time.Date(2026, 4, 2, 19, 30, 0, 0, time.UTC)
	values := stopRowValues(models.StopRecord{
		BookingID:       "b1",
		StoreID:         "42",
		StaffName:       "Asha",
		CustomerName:    "Ravi",
		Phone:           "9876543210",
		Screen:          "VR-1",
		Game:            "VR",
		TotalMinutes:    120,
		Players:         2,
		FirstGamePrice:  500,
		ExtendedMinutes: 60,
		ExtendedAmount:  500,
		RemainingAmount: 500,
		Mode:            models.StopLedger,
		LedgerDebit:     500,
		StoppedAt:       at,
	})

	if len(values) != len(stopHeader) {
		t.Fatalf("Expected %d values, got %d", len(stopHeader), len(values))
	}
	if values[0] != "b1" || values[14] != "ledger" {
		t.Errorf("Unexpected values: %v", values)
	}
	if values[16] != "2026-04-02 19:30:00" {
		t.Errorf("Unexpected timestamp: %v", values[16])
	}
}

func TestAppendStopUpdatesKnownRow(t *testing.T) {
	f := &fakeValues{}
	s := newSheetsService(f, "", nil)
	ctx := context.Background()
	rec := models.StopRecord{BookingID: "b1", StoppedAt: time.Now()}

	if err := s.AppendStop(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(f.appended) != 1 {
		t.Fatalf("Expected 1 appended row, got %d", len(f.appended))
	}
	if row, ok := s.getCachedRow("b1"); !ok || row != 1 {
		t.Errorf("Expected cached row 1, got %d (ok=%v)", row, ok)
	}

	if err := s.AppendStop(ctx, rec); err != nil {
		t.Fatalf("append again: %v", err)
	}
	if len(f.appended) != 1 {
		t.Errorf("Expected no second append, got %d rows", len(f.appended))
	}
	if _, ok := f.updated["Stops!A1:Q1"]; !ok {
		t.Errorf("Expected in-place update, got %v", f.updated)
	}
}

func TestEnsureHeader(t *testing.T) {
	f := &fakeValues{}
	s := newSheetsService(f, "Stops", nil)
	if err := s.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("ensure header: %v", err)
	}
	if len(f.updated["Stops!A1:Q1"]) != 1 {
		t.Errorf("Expected header to be written")
	}

	f = &fakeValues{existing: [][]interface{}{{"Booking ID"}}}
	s = newSheetsService(f, "Stops", nil)
	if err := s.EnsureHeader(context.Background()); err != nil {
		t.Fatalf("ensure header: %v", err)
	}
	if len(f.updated) != 0 {
		t.Errorf("Expected existing header to be kept")
	}
}

func TestRowFromRange(t *testing.T) {
	tests := []struct {
		in   string
		row  int
		want bool
	}{
		{"Stops!A5:Q5", 5, true},
		{"'Daily stops'!A120:Q120", 120, true},
		{"", 0, false},
	}
	for _, tt := range tests {
		row, ok := rowFromRange(tt.in)
		if ok != tt.want || row != tt.row {
			t.Errorf("rowFromRange(%q) = %d, %v", tt.in, row, ok)
		}
	}
}

func TestCacheOperations(t *testing.T) {
	s := newSheetsService(&fakeValues{}, "", nil)

	s.setCachedRow("b100", 5)
	row, ok := s.getCachedRow("b100")
	if !ok || row != 5 {
		t.Errorf("Expected row 5, got %d (ok=%v)", row, ok)
	}

	s.deleteCacheRow("b100")
	if _, ok = s.getCachedRow("b100"); ok {
		t.Errorf("Expected row to be deleted from cache")
	}

	s.setCachedRow("b200", 10)
	s.ClearCache()
	if _, ok = s.getCachedRow("b200"); ok {
		t.Errorf("Expected cache to be cleared")
	}
}
