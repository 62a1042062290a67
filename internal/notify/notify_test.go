package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gamezone/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	errs []error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return tgbotapi.Message{}, err
	}
	return tgbotapi.Message{}, nil
}

func TestNotifyAllChats(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender, Config{ChatIDs: []int64{1, 2}}, nil)

	require.NoError(t, n.Notify(context.Background(), "hello"))
	require.Len(t, sender.sent, 2)
	msg, ok := sender.sent[1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(2), msg.ChatID)
	assert.Equal(t, "hello", msg.Text)
}

func TestNotifyRetriesOnTooManyRequests(t *testing.T) {
	sender := &fakeSender{errs: []error{
		&tgbotapi.Error{Code: 429, Message: "Too Many Requests"},
	}}
	n := NewTelegramNotifierWithSender(sender, Config{ChatIDs: []int64{1}, MaxRetries: 1, RetryDelay: time.Millisecond}, nil)

	require.NoError(t, n.Notify(context.Background(), "hi"))
	assert.Len(t, sender.sent, 2)
}

func TestNotifyDoesNotRetryOtherErrors(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("forbidden")}}
	n := NewTelegramNotifierWithSender(sender, Config{ChatIDs: []int64{1}, MaxRetries: 3}, nil)

	assert.Error(t, n.Notify(context.Background(), "hi"))
	assert.Len(t, sender.sent, 1)
}

func TestSendDocument(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifierWithSender(sender, Config{ChatIDs: []int64{7, 8}}, nil)

	require.NoError(t, n.SendDocument(context.Background(), "report.xlsx", strings.NewReader("xlsx"), "Monthly"))
	require.Len(t, sender.sent, 2)
	doc, ok := sender.sent[1].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Monthly", doc.Caption)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, []byte("xlsx"), file.Bytes)
}

func TestMessages(t *testing.T) {
	b := models.Booking{Name: "Ravi", Screen: "VR-1", Game: "VR", UnpaidAmount: 100, ExtendedAmount: 150}
	assert.Equal(t, "⏰ 5 minutes left: Ravi on VR-1 (VR)", LowTimeMessage(b))
	assert.Equal(t, "⌛ Time is up: Ravi on VR-1. Amount due ₹250.00", ExpiredMessage(b))

	b.Name = ""
	b.UnpaidAmount, b.ExtendedAmount = 0, 0
	assert.Equal(t, "⌛ Time is up: guest on VR-1", ExpiredMessage(b))

	msg := StopMessage(models.StopRecord{
		Screen:          "VR-1",
		CustomerName:    "Ravi",
		TotalMinutes:    120,
		RemainingAmount: 250,
		Mode:            models.StopLedger,
		LedgerDebit:     250,
		StaffName:       "Asha",
	})
	assert.Equal(t, "🛑 Stopped VR-1: Ravi, 120 min, due ₹250.00 (₹250.00 to ledger) by Asha", msg)
}
