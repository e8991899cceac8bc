package domain

import (
	"context"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BookingRepository interface {
	FindBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error)
	CreateBookingWithLock(
		ctx context.Context,
		booking *models.Booking,
		customer *models.Customer,
		policy availability.Policy,
	) (bool, error)
	CreateBlock(ctx context.Context, block *models.Booking, policy availability.Policy) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status string) error
}

type ContactRepository interface {
	CreateContactSubmission(ctx context.Context, s *models.ContactSubmission) error
	ListContactSubmissions(ctx context.Context, limit, offset int) ([]*models.ContactSubmission, int, error)
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	ClaimSyncTask(ctx context.Context, id int64) (bool, error)
	ResetStaleSyncTasks(ctx context.Context) (int64, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// StateRepository holds short-lived shared state: the per-day booking cache
// and fixed-window rate-limit counters.
type StateRepository interface {
	GetDay(ctx context.Context, date string) ([]models.Booking, bool, error)
	SetDay(ctx context.Context, date string, records []models.Booking, ttl time.Duration) error
	InvalidateDay(ctx context.Context, date string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

type TaskEnqueuer interface {
	EnqueueTask(ctx context.Context, taskType, entityID string, payload any) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
	AppendContact(ctx context.Context, submission *models.ContactSubmission) error
}

type Notifier interface {
	NotifyBooking(ctx context.Context, booking *models.Booking) error
	NotifyStatusChange(ctx context.Context, booking *models.Booking, action string) error
	NotifyContact(ctx context.Context, submission *models.ContactSubmission) error
}

// DayInvalidator drops cached availability for a date after a write.
type DayInvalidator interface {
	Invalidate(ctx context.Context, date time.Time)
}
