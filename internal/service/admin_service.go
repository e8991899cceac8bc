package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gprbooking/internal/availability"
	"gprbooking/internal/database"
	"gprbooking/internal/domain"
	"gprbooking/internal/events"
	"gprbooking/internal/models"
	"gprbooking/internal/worker"

	"github.com/rs/zerolog"
)

const (
	ActionConfirm  = "confirm"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionBlock    = "block"
	ActionUnblock  = "unblock"

	blockService = "admin-block"
)

// allowedTransitions lists the customer booking lifecycle. Completed and
// cancelled are terminal.
var allowedTransitions = map[string][]string{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type BlockInput struct {
	Date string `json:"date"`
	Time string `json:"time"`
	Note string `json:"note"`
}

// AdminService implements the dashboard actions.
type AdminService struct {
	repo     domain.BookingRepository
	policy   availability.Policy
	cache    domain.DayInvalidator
	eventBus domain.EventPublisher
	tasks    domain.TaskEnqueuer
	logger   *zerolog.Logger
}

func NewAdminService(
	repo domain.BookingRepository,
	policy availability.Policy,
	cache domain.DayInvalidator,
	eventBus domain.EventPublisher,
	tasks domain.TaskEnqueuer,
	logger *zerolog.Logger,
) *AdminService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AdminService{
		repo:     repo,
		policy:   policy,
		cache:    cache,
		eventBus: eventBus,
		tasks:    tasks,
		logger:   logger,
	}
}

func (s *AdminService) ListBookings(ctx context.Context, filter models.BookingFilter) (*models.GetBookingsResponse, error) {
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		return nil, &availability.ValidationError{Field: "status", Message: "unknown status"}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, &availability.ValidationError{Field: "to", Message: "to must not be before from"}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, &availability.ValidationError{Field: "limit", Message: "limit and offset must not be negative"}
	}
	bookings, total, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
	}
	return models.NewGetBookingsResponse(bookings, total), nil
}

// Bookings returns the raw records for exports.
func (s *AdminService) Bookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	bookings, _, err := s.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
	}
	return bookings, nil
}

func (s *AdminService) ConfirmBooking(ctx context.Context, id, actor string) (*models.AdminActionResponse, error) {
	return s.transition(ctx, id, actor, ActionConfirm, models.StatusConfirmed, events.EventBookingConfirmed)
}

func (s *AdminService) CompleteBooking(ctx context.Context, id, actor string) (*models.AdminActionResponse, error) {
	return s.transition(ctx, id, actor, ActionComplete, models.StatusCompleted, events.EventBookingCompleted)
}

func (s *AdminService) CancelBooking(ctx context.Context, id, actor string) (*models.AdminActionResponse, error) {
	return s.transition(ctx, id, actor, ActionCancel, models.StatusCancelled, events.EventBookingCancelled)
}

func (s *AdminService) transition(ctx context.Context, id, actor, action, to, eventType string) (*models.AdminActionResponse, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if booking.IsBlocked {
		return nil, fmt.Errorf("%w: %s is a block, use unblock", ErrInvalidTransition, booking.JobNumber)
	}
	if !canTransition(booking.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.Status, to)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, to); err != nil {
		return nil, storeError(err)
	}
	from := booking.Status
	booking.Status = to
	booking.Version++

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("from", from).
		Str("to", to).
		Str("actor", actor).
		Msg("Booking status changed")

	s.afterWrite(ctx, booking, eventType, actor)
	enqueueTask(ctx, s.tasks, s.logger, worker.TaskNotifyStatus, booking.ID, worker.TaskPayload{Booking: booking, Action: action})

	return &models.AdminActionResponse{
		Success:           true,
		Action:            action,
		AffectedBookingID: booking.ID,
		Message:           fmt.Sprintf("Booking %s is now %s", booking.JobNumber, to),
	}, nil
}

// BlockSlot reserves a date, or a single slot when a time is given, for the
// administrator. Slots that already hold an active record are refused.
func (s *AdminService) BlockSlot(ctx context.Context, in BlockInput, actor string) (*models.AdminActionResponse, error) {
	req, err := availability.ParseRequest(in.Date, in.Time, blockService)
	if err != nil {
		return nil, err
	}

	block := &models.Booking{
		Date:        req.Date,
		BookingTime: req.Time,
		Service:     blockService,
		Notes:       strings.TrimSpace(in.Note),
	}
	if err := s.repo.CreateBlock(ctx, block, s.policy); err != nil {
		if conflict, ok := asSlotUnavailable(err); ok {
			return nil, conflict
		}
		return nil, fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
	}

	s.logger.Info().
		Str("block_id", block.ID).
		Str("date", models.FormatDate(block.Date)).
		Str("time", block.BookingTime.String()).
		Str("actor", actor).
		Msg("Slot blocked")

	s.invalidate(ctx, block)
	publishBookingEvent(s.eventBus, s.logger, events.EventSlotBlocked, block, actor)
	enqueueTask(ctx, s.tasks, s.logger, worker.TaskSheetsUpsertBooking, block.ID, worker.TaskPayload{Booking: block})

	what := "Date " + models.FormatDate(block.Date)
	if block.BookingTime.IsSet() {
		what = fmt.Sprintf("Slot %s %s", models.FormatDate(block.Date), block.BookingTime)
	}
	return &models.AdminActionResponse{
		Success:           true,
		Action:            ActionBlock,
		AffectedBookingID: block.ID,
		Message:           what + " blocked",
	}, nil
}

// UnblockSlot releases a block by cancelling it.
func (s *AdminService) UnblockSlot(ctx context.Context, id, actor string) (*models.AdminActionResponse, error) {
	block, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	if !block.IsBlocked {
		return nil, database.ErrNotBlock
	}
	if !block.Active() {
		return nil, fmt.Errorf("%w: block %s is already released", ErrInvalidTransition, block.JobNumber)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, block.ID, block.Version, models.StatusCancelled); err != nil {
		return nil, storeError(err)
	}
	block.Status = models.StatusCancelled
	block.Version++

	s.logger.Info().Str("block_id", block.ID).Str("actor", actor).Msg("Slot unblocked")
	s.afterWrite(ctx, block, events.EventSlotUnblocked, actor)

	return &models.AdminActionResponse{
		Success:           true,
		Action:            ActionUnblock,
		AffectedBookingID: block.ID,
		Message:           fmt.Sprintf("Block %s released", block.JobNumber),
	}, nil
}

// storeError keeps not-found and version conflicts as they are and reports
// anything else as the store being unavailable.
func storeError(err error) error {
	if errors.Is(err, database.ErrBookingNotFound) || errors.Is(err, database.ErrConcurrentModification) {
		return err
	}
	return fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
}

func (s *AdminService) afterWrite(ctx context.Context, booking *models.Booking, eventType, actor string) {
	s.invalidate(ctx, booking)
	publishBookingEvent(s.eventBus, s.logger, eventType, booking, actor)
	enqueueTask(ctx, s.tasks, s.logger, worker.TaskSheetsUpdateStatus, booking.ID, worker.TaskPayload{Status: booking.Status})
}

func (s *AdminService) invalidate(ctx context.Context, booking *models.Booking) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, booking.Date)
	}
}
