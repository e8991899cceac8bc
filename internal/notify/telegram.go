// Package notify alerts the office about new bookings, status changes and
// contact messages through Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"gprbooking/internal/config"
	"gprbooking/internal/domain"
	"gprbooking/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

func (n *TelegramNotifier) NotifyBooking(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return errors.New("booking is nil")
	}
	var sb strings.Builder
	sb.WriteString("<b>New booking request</b>\n")
	writeBookingLines(&sb, b)
	if b.Address != "" {
		fmt.Fprintf(&sb, "Site: %s\n", html.EscapeString(b.Address))
	}
	if b.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", html.EscapeString(b.Notes))
	}
	return n.broadcast(ctx, sb.String())
}

func (n *TelegramNotifier) NotifyStatusChange(ctx context.Context, b *models.Booking, action string) error {
	if b == nil {
		return errors.New("booking is nil")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Booking %s: %s</b>\n", html.EscapeString(b.JobNumber), html.EscapeString(action))
	writeBookingLines(&sb, b)
	return n.broadcast(ctx, sb.String())
}

func (n *TelegramNotifier) NotifyContact(ctx context.Context, c *models.ContactSubmission) error {
	if c == nil {
		return errors.New("contact submission is nil")
	}
	var sb strings.Builder
	sb.WriteString("<b>New contact message</b>\n")
	fmt.Fprintf(&sb, "From: %s &lt;%s&gt;\n", html.EscapeString(c.Name), html.EscapeString(c.Email))
	if c.Phone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", html.EscapeString(c.Phone))
	}
	if c.Service != "" {
		fmt.Fprintf(&sb, "Service: %s\n", html.EscapeString(c.Service))
	}
	fmt.Fprintf(&sb, "\n%s", html.EscapeString(c.Message))
	return n.broadcast(ctx, sb.String())
}

func writeBookingLines(sb *strings.Builder, b *models.Booking) {
	when := models.FormatDate(b.Date)
	if b.BookingTime.IsSet() {
		when += " " + b.BookingTime.String()
	} else {
		when += " (all day)"
	}
	fmt.Fprintf(sb, "Job: %s\n", html.EscapeString(b.JobNumber))
	fmt.Fprintf(sb, "When: %s\n", when)
	fmt.Fprintf(sb, "Service: %s\n", html.EscapeString(b.Service))
	fmt.Fprintf(sb, "Status: %s\n", b.Status)
	if b.CustomerEmail != "" {
		fmt.Fprintf(sb, "Customer: %s %s\n", html.EscapeString(b.CustomerName), html.EscapeString(b.CustomerEmail))
	}
	if b.CustomerPhone != "" {
		fmt.Fprintf(sb, "Phone: %s\n", html.EscapeString(b.CustomerPhone))
	}
}

// broadcast sends text to every admin chat and reports all failures together.
func (n *TelegramNotifier) broadcast(ctx context.Context, text string) error {
	if n.bot == nil || len(n.chatIDs) == 0 {
		return nil
	}
	var errs []error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Telegram send failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}
