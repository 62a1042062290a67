package audit

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeExporter struct{}

func (fakeExporter) GetTableNames(context.Context) ([]string, error) {
	return []string{"stop_records"}, nil
}

func (fakeExporter) GetTableData(context.Context, string) ([]map[string]interface{}, []string, error) {
	return []map[string]interface{}{
		{"booking_id": "b1", "remaining_amount": 250.0},
		{"booking_id": "b2", "remaining_amount": 0.0},
	}, []string{"booking_id", "remaining_amount"}, nil
}

type captureNotifier struct {
	filename string
	caption  string
	data     []byte
}

func (c *captureNotifier) SendDocument(_ context.Context, filename string, data io.Reader, caption string) error {
	c.filename = filename
	c.caption = caption
	var err error
	c.data, err = io.ReadAll(data)
	return err
}

type fakeCleaner struct {
	olderThan time.Duration
}

func (f *fakeCleaner) DeleteOldStops(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 3, nil
}

func TestExportSendsWorkbook(t *testing.T) {
	notifier := &captureNotifier{}
	cleaner := &fakeCleaner{}
	svc := NewService(&Config{DataRetentionDays: 7, StoreName: "Lounge"}, fakeExporter{}, NewExcelizeWriter, notifier, cleaner, nil)
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 0, 1, 0, 0, time.UTC) }

	svc.RunExportAndCleanup()

	assert.Equal(t, "report_2026_04_April.xlsx", notifier.filename)
	assert.Contains(t, notifier.caption, "Lounge")
	assert.Equal(t, 7*24*time.Hour, cleaner.olderThan)

	f, err := excelize.OpenReader(bytes.NewReader(notifier.data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("stop_records")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"booking_id", "remaining_amount"}, rows[0])
	assert.Equal(t, "b1", rows[1][0])
}

func TestExportWithoutWriter(t *testing.T) {
	svc := NewService(nil, fakeExporter{}, nil, nil, nil, nil)
	assert.Error(t, svc.ExportNow())
	assert.NoError(t, svc.CleanupNow())
}

func TestNextFirstOfMonth(t *testing.T) {
	got := NextFirstOfMonth(time.Date(2026, 12, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 1, 0, 0, time.UTC), got)
}

func TestAddSheetSanitizesName(t *testing.T) {
	w := NewExcelizeWriter().(*ExcelizeWriter)
	defer w.Close()
	require.NoError(t, w.AddSheet("Ravi/9876543210 statement for april 2026"))
	assert.Len(t, []rune(w.currentSheet), 31)
	assert.NotContains(t, w.currentSheet, "/")
}
