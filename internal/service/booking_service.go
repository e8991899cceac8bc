package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/database"
	"gprbooking/internal/domain"
	"gprbooking/internal/events"
	"gprbooking/internal/models"
	"gprbooking/internal/worker"

	"github.com/rs/zerolog"
)

var (
	ErrSlotUnavailable   = errors.New("requested slot is not available")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrRateLimited       = errors.New("too many requests")
)

// SlotUnavailableError carries the availability verdict that blocked a write.
type SlotUnavailableError struct {
	Result *models.CheckAvailabilityResponse
}

func (e *SlotUnavailableError) Error() string {
	if e.Result != nil && e.Result.Reason != "" {
		return ErrSlotUnavailable.Error() + ": " + e.Result.Reason
	}
	return ErrSlotUnavailable.Error()
}

func (e *SlotUnavailableError) Is(target error) bool { return target == ErrSlotUnavailable }

// asSlotUnavailable converts a storage-level conflict into the service error.
func asSlotUnavailable(err error) (*SlotUnavailableError, bool) {
	var conflict *database.ConflictError
	if errors.As(err, &conflict) {
		return &SlotUnavailableError{Result: conflict.Result}, true
	}
	if errors.Is(err, database.ErrSlotTaken) {
		return &SlotUnavailableError{Result: &models.CheckAvailabilityResponse{
			Available: false,
			Reason:    availability.ReasonSlotBooked,
		}}, true
	}
	return nil, false
}

type CreateBookingInput struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Service string `json:"service"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type BookingService struct {
	repo           domain.BookingRepository
	checker        *availability.Checker
	catalog        *Catalog
	cache          domain.DayInvalidator
	eventBus       domain.EventPublisher
	tasks          domain.TaskEnqueuer
	maxBookingDays int
	location       *time.Location
	now            func() time.Time
	logger         *zerolog.Logger
}

// NewBookingService wires the booking flow. cache, eventBus and tasks may be nil.
func NewBookingService(
	repo domain.BookingRepository,
	checker *availability.Checker,
	catalog *Catalog,
	cache domain.DayInvalidator,
	eventBus domain.EventPublisher,
	tasks domain.TaskEnqueuer,
	maxBookingDays int,
	location *time.Location,
	logger *zerolog.Logger,
) *BookingService {
	if maxBookingDays <= 0 {
		maxBookingDays = 180
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:           repo,
		checker:        checker,
		catalog:        catalog,
		cache:          cache,
		eventBus:       eventBus,
		tasks:          tasks,
		maxBookingDays: maxBookingDays,
		location:       location,
		now:            time.Now,
		logger:         logger,
	}
}

// Check answers the public availability query. It never writes.
func (s *BookingService) Check(ctx context.Context, date, slotTime, service string) (*models.CheckAvailabilityResponse, error) {
	req, err := availability.ParseRequest(date, slotTime, service)
	if err != nil {
		return nil, err
	}
	return s.checker.Check(ctx, req)
}

// ValidateBookingDate rejects dates before today or beyond the booking horizon,
// both measured in the business timezone.
func (s *BookingService) ValidateBookingDate(date time.Time) error {
	now := s.now().In(s.location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	if day.Before(today) {
		return &availability.ValidationError{Field: "date", Message: "date is in the past"}
	}
	if day.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return &availability.ValidationError{
			Field:   "date",
			Message: fmt.Sprintf("bookings open at most %d days ahead", s.maxBookingDays),
		}
	}
	return nil
}

func (s *BookingService) validateInput(in *CreateBookingInput) (availability.Request, error) {
	req, err := availability.ParseRequest(in.Date, in.Time, in.Service)
	if err != nil {
		return availability.Request{}, err
	}
	if s.catalog != nil {
		if _, ok := s.catalog.Get(req.Service); !ok {
			return availability.Request{}, &availability.ValidationError{Field: "service", Message: "unknown service"}
		}
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return availability.Request{}, &availability.ValidationError{Field: "name", Message: "name is required"}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return availability.Request{}, &availability.ValidationError{Field: "email", Message: "invalid email address"}
	}
	in.Email = addr.Address

	if err := s.ValidateBookingDate(req.Date); err != nil {
		return availability.Request{}, err
	}
	return req, nil
}

// CreateBooking checks the slot, then commits the booking and its customer
// in one transaction that re-checks the slot.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.CreateBookingResponse, error) {
	req, err := s.validateInput(&in)
	if err != nil {
		return nil, err
	}

	verdict, err := s.checker.Check(ctx, req)
	if err != nil {
		return nil, err
	}
	if !verdict.Available {
		return nil, &SlotUnavailableError{Result: verdict}
	}

	booking := &models.Booking{
		Date:        req.Date,
		BookingTime: req.Time,
		Service:     req.Service,
		Status:      models.StatusPending,
		Address:     strings.TrimSpace(in.Address),
		Notes:       strings.TrimSpace(in.Notes),
	}
	customer := &models.Customer{
		Email: in.Email,
		Name:  in.Name,
		Phone: strings.TrimSpace(in.Phone),
	}

	isExisting, err := s.repo.CreateBookingWithLock(ctx, booking, customer, s.checker.Policy())
	if err != nil {
		if conflict, ok := asSlotUnavailable(err); ok {
			s.invalidate(ctx, req.Date)
			return nil, conflict
		}
		return nil, fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
	}

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("job_number", booking.JobNumber).
		Str("date", models.FormatDate(booking.Date)).
		Str("time", booking.BookingTime.String()).
		Bool("existing_customer", isExisting).
		Msg("Booking created")

	s.invalidate(ctx, booking.Date)
	s.publishEvent(events.EventBookingCreated, booking, "customer")
	s.enqueue(ctx, worker.TaskSheetsUpsertBooking, booking.ID, worker.TaskPayload{Booking: booking})
	s.enqueue(ctx, worker.TaskNotifyBooking, booking.ID, worker.TaskPayload{Booking: booking})

	return models.NewCreateBookingResponse(booking, customer, isExisting), nil
}

func (s *BookingService) invalidate(ctx context.Context, date time.Time) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, date)
	}
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	publishBookingEvent(s.eventBus, s.logger, eventType, booking, changedBy)
}

func (s *BookingService) enqueue(ctx context.Context, taskType, entityID string, payload worker.TaskPayload) {
	enqueueTask(ctx, s.tasks, s.logger, taskType, entityID, payload)
}

func publishBookingEvent(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, booking *models.Booking, changedBy string) {
	if bus == nil {
		return
	}
	if err := bus.PublishJSON(eventType, events.NewBookingEventPayload(booking, changedBy)); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

// enqueueTask logs instead of failing: the write it follows is already committed.
func enqueueTask(ctx context.Context, tasks domain.TaskEnqueuer, logger *zerolog.Logger, taskType, entityID string, payload worker.TaskPayload) {
	if tasks == nil {
		return
	}
	if err := tasks.EnqueueTask(ctx, taskType, entityID, payload); err != nil {
		logger.Error().Err(err).Str("entity_id", entityID).Str("task", taskType).Msg("outbox enqueue error")
	}
}
