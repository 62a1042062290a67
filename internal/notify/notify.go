// Package notify delivers counter alerts and reports to staff chats.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gamezone/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Notifier sends staff alerts and documents.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error
}

// TelegramSender is the part of the bot API used for delivery.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config configures Telegram delivery.
type Config struct {
	ChatIDs    []int64
	Rate       float64
	Burst      int
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the default delivery settings.
func DefaultConfig() Config {
	return Config{
		Rate:       20,
		Burst:      30,
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

// TelegramNotifier posts messages to every configured chat.
type TelegramNotifier struct {
	sender  TelegramSender
	config  Config
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewTelegramNotifier connects to the bot API with token.
func NewTelegramNotifier(token string, config Config, logger *zerolog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return NewTelegramNotifierWithSender(api, config, logger), nil
}

// NewTelegramNotifierWithSender builds a notifier around an existing sender.
func NewTelegramNotifierWithSender(sender TelegramSender, config Config, logger *zerolog.Logger) *TelegramNotifier {
	def := DefaultConfig()
	if config.Rate <= 0 {
		config.Rate = def.Rate
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = def.RetryDelay
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "notify").Logger()
	}
	return &TelegramNotifier{
		sender:  sender,
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
		logger:  l,
	}
}

// Notify sends text to every chat. It returns the first delivery error.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	var firstErr error
	for _, chatID := range n.config.ChatIDs {
		if err := n.send(ctx, tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("message delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SendDocument uploads a file to every chat.
func (n *TelegramNotifier) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	var firstErr error
	for _, chatID := range n.config.ChatIDs {
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: filename, Bytes: body})
		doc.Caption = caption
		if err := n.send(ctx, doc); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("filename", filename).Msg("document delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// send waits for the limiter and honours Telegram's retry_after on 429.
func (n *TelegramNotifier) send(ctx context.Context, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= n.config.MaxRetries; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		_, err := n.sender.Send(c)
		if err == nil {
			return nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if !errors.As(err, &tgErr) || tgErr.Code != 429 {
			return err
		}
		wait := time.Duration(tgErr.RetryAfter) * time.Second
		if wait == 0 {
			wait = n.config.RetryDelay
		}
		n.logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Msg("rate limited by Telegram, waiting")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// LogNotifier writes alerts to the log when no chat is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "notify").Logger()
	}
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Info().Str("text", text).Msg("alert")
	return nil
}

func (n *LogNotifier) SendDocument(_ context.Context, filename string, data io.Reader, caption string) error {
	size, err := io.Copy(io.Discard, data)
	if err != nil {
		return err
	}
	n.logger.Info().Str("filename", filename).Int64("bytes", size).Str("caption", caption).Msg("document ready")
	return nil
}

// LowTimeMessage is the five-minute warning for a booking.
func LowTimeMessage(b models.Booking) string {
	return fmt.Sprintf("⏰ 5 minutes left: %s on %s (%s)", nameOr(b.Name), b.Screen, b.Game)
}

// ExpiredMessage announces that a booking ran out of time.
func ExpiredMessage(b models.Booking) string {
	msg := fmt.Sprintf("⌛ Time is up: %s on %s", nameOr(b.Name), b.Screen)
	if due := b.RemainingAmount(); due > 0 {
		msg += fmt.Sprintf(". Amount due ₹%.2f", due)
	}
	return msg
}

// StopMessage summarises a stopped booking.
func StopMessage(r models.StopRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🛑 Stopped %s: %s, %d min", r.Screen, nameOr(r.CustomerName), r.TotalMinutes)
	if r.RemainingAmount > 0 {
		fmt.Fprintf(&sb, ", due ₹%.2f", r.RemainingAmount)
	}
	if r.Mode == models.StopLedger && r.LedgerDebit > 0 {
		fmt.Fprintf(&sb, " (₹%.2f to ledger)", r.LedgerDebit)
	}
	if r.StaffName != "" {
		fmt.Fprintf(&sb, " by %s", r.StaffName)
	}
	return sb.String()
}

func nameOr(name string) string {
	if strings.TrimSpace(name) == "" {
		return "guest"
	}
	return name
}
