package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"gprbooking/internal/config"
	"gprbooking/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent   []tgbotapi.MessageConfig
	failOn int64
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if msg.ChatID == f.failOn {
		return tgbotapi.Message{}, errors.New("forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func booking() *models.Booking {
	return &models.Booking{
		ID:            "b1",
		JobNumber:     "GPR-20240601-001",
		Date:          time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		BookingTime:   models.At(10, 0),
		Service:       "gpr-scan",
		Status:        models.StatusPending,
		CustomerName:  "Jo <Site Lead>",
		CustomerEmail: "jo@example.com",
		Address:       "1 Site Rd",
	}
}

func TestNotifyBooking(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100, 200}, nil)

	require.NoError(t, n.NotifyBooking(context.Background(), booking()))
	require.Len(t, sender.sent, 2)
	msg := sender.sent[0]
	assert.Equal(t, int64(100), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "GPR-20240601-001")
	assert.Contains(t, msg.Text, "2024-06-01 10:00")
	assert.Contains(t, msg.Text, "Jo &lt;Site Lead&gt;")
	assert.Contains(t, msg.Text, "1 Site Rd")
}

func TestNotifyBookingAllDay(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100}, nil)
	b := booking()
	b.BookingTime = models.NoTime()

	require.NoError(t, n.NotifyBooking(context.Background(), b))
	assert.Contains(t, sender.sent[0].Text, "2024-06-01 (all day)")
}

func TestNotifyStatusChange(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100}, nil)
	b := booking()
	b.Status = models.StatusConfirmed

	require.NoError(t, n.NotifyStatusChange(context.Background(), b, "confirm"))
	assert.Contains(t, sender.sent[0].Text, "Booking GPR-20240601-001: confirm")
	assert.Contains(t, sender.sent[0].Text, "Status: confirmed")
}

func TestNotifyContact(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, []int64{100}, nil)

	err := n.NotifyContact(context.Background(), &models.ContactSubmission{
		Name: "Ann", Email: "ann@example.com", Phone: "0400", Message: "Scan a slab & core it",
	})
	require.NoError(t, err)
	assert.Contains(t, sender.sent[0].Text, "ann@example.com")
	assert.Contains(t, sender.sent[0].Text, "Scan a slab &amp; core it")
}

func TestBroadcastPartialFailure(t *testing.T) {
	sender := &fakeSender{failOn: 100}
	n := NewTelegramNotifier(sender, []int64{100, 200}, nil)

	err := n.NotifyBooking(context.Background(), booking())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 100")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(200), sender.sent[0].ChatID)
}

func TestNotifierNoops(t *testing.T) {
	n := NewTelegramNotifier(nil, []int64{100}, nil)
	assert.NoError(t, n.NotifyBooking(context.Background(), booking()))

	n = NewTelegramNotifier(&fakeSender{}, nil, nil)
	assert.NoError(t, n.NotifyContact(context.Background(), &models.ContactSubmission{Name: "a"}))

	assert.Error(t, n.NotifyBooking(context.Background(), nil))
	assert.Error(t, n.NotifyStatusChange(context.Background(), nil, "cancel"))
	assert.Error(t, n.NotifyContact(context.Background(), nil))
}

func TestNewBotAPIRequiresToken(t *testing.T) {
	_, err := NewBotAPI(config.TelegramConfig{})
	assert.Error(t, err)
}
