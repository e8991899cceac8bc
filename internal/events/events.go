package events

import (
	"encoding/json"
	"sync"
	"time"

	"gprbooking/internal/models"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCompleted = "booking.completed"
	EventBookingCancelled = "booking.cancelled"
	EventSlotBlocked      = "slot.blocked"
	EventSlotUnblocked    = "slot.unblocked"
	EventContactSubmitted = "contact.submitted"
)

// AllTypes lists every event type the service emits.
var AllTypes = []string{
	EventBookingCreated,
	EventBookingConfirmed,
	EventBookingCompleted,
	EventBookingCancelled,
	EventSlotBlocked,
	EventSlotUnblocked,
	EventContactSubmitted,
}

// BookingEventPayload is the booking snapshot sent to event consumers.
type BookingEventPayload struct {
	BookingID     string  `json:"booking_id"`
	JobNumber     string  `json:"job_number"`
	Date          string  `json:"date"`
	Time          *string `json:"time"`
	Service       string  `json:"service"`
	Status        string  `json:"status"`
	IsBlocked     bool    `json:"is_blocked"`
	CustomerEmail string  `json:"customer_email,omitempty"`
	ChangedBy     string  `json:"changed_by,omitempty"`
}

func NewBookingEventPayload(b *models.Booking, changedBy string) BookingEventPayload {
	return BookingEventPayload{
		BookingID:     b.ID,
		JobNumber:     b.JobNumber,
		Date:          models.FormatDate(b.Date),
		Time:          b.BookingTime.Ptr(),
		Service:       b.Service,
		Status:        b.Status,
		IsBlocked:     b.IsBlocked,
		CustomerEmail: b.CustomerEmail,
		ChangedBy:     changedBy,
	}
}

type ContactEventPayload struct {
	SubmissionID string `json:"submission_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Service      string `json:"service,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError installs a hook for handler failures. Handlers never stop delivery.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers synchronously, in registration order.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
