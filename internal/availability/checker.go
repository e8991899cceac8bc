// Package availability decides whether a (date, optional time) slot is free
// for a new booking, given the records already stored for that date.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gprbooking/internal/models"
)

const (
	ReasonSlotBooked   = "slot already booked"
	ReasonDateBlocked  = "date blocked by administrator"
	ReasonSlotBlocked  = "slot blocked by administrator"
	defaultSlotMinutes = 120
)

// ErrStorageUnavailable is returned when the booking store cannot be queried.
// Callers retry with backoff; the checker never retries.
var ErrStorageUnavailable = errors.New("booking store unavailable")

// ValidationError reports malformed check input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// MatchMode selects how two timed records are compared.
type MatchMode string

const (
	MatchExact  MatchMode = "exact"
	MatchWindow MatchMode = "window"
)

// Policy configures conflict detection.
type Policy struct {
	Mode         MatchMode
	SlotDuration time.Duration
}

// DefaultPolicy matches timed slots by exact start time.
func DefaultPolicy() Policy {
	return Policy{Mode: MatchExact, SlotDuration: defaultSlotMinutes * time.Minute}
}

// Request is a validated availability query.
type Request struct {
	Date    time.Time
	Time    models.SlotTime
	Service string
}

// ParseRequest validates raw query values.
func ParseRequest(date, slotTime, service string) (Request, error) {
	if strings.TrimSpace(date) == "" {
		return Request{}, &ValidationError{Field: "date", Message: "date is required"}
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return Request{}, &ValidationError{Field: "date", Message: err.Error()}
	}
	t, err := models.ParseSlotTime(slotTime)
	if err != nil {
		return Request{}, &ValidationError{Field: "time", Message: err.Error()}
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return Request{}, &ValidationError{Field: "service", Message: "service is required"}
	}
	return Request{Date: d, Time: t, Service: service}, nil
}

// BookingFinder is the narrow read interface onto the booking store.
// Implementations return every non-cancelled record on the date, blocks included.
type BookingFinder interface {
	FindBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error)
}

// Checker answers availability queries against a BookingFinder.
type Checker struct {
	finder BookingFinder
	policy Policy
}

func NewChecker(finder BookingFinder, policy Policy) *Checker {
	if policy.Mode == "" {
		policy.Mode = MatchExact
	}
	if policy.SlotDuration <= 0 {
		policy.SlotDuration = defaultSlotMinutes * time.Minute
	}
	return &Checker{finder: finder, policy: policy}
}

func (c *Checker) Policy() Policy { return c.policy }

// Check is read-only and fails outright on storage errors.
func (c *Checker) Check(ctx context.Context, req Request) (*models.CheckAvailabilityResponse, error) {
	if strings.TrimSpace(req.Service) == "" {
		return nil, &ValidationError{Field: "service", Message: "service is required"}
	}
	if req.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "date is required"}
	}

	records, err := c.finder.FindBookingsByDate(ctx, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return Evaluate(req, records, c.policy), nil
}

// Evaluate computes the verdict for req over the records of its date.
// Records from other dates and cancelled records are ignored.
func Evaluate(req Request, records []models.Booking, policy Policy) *models.CheckAvailabilityResponse {
	day := models.FormatDate(req.Date)

	var conflicts []models.Booking
	for i := range records {
		rec := records[i]
		if !rec.Active() || models.FormatDate(rec.Date) != day {
			continue
		}
		if overlaps(req.Time, rec.BookingTime, policy) {
			conflicts = append(conflicts, rec)
		}
	}

	if len(conflicts) == 0 {
		return &models.CheckAvailabilityResponse{Available: true}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		mi, okI := conflicts[i].BookingTime.Get()
		mj, okJ := conflicts[j].BookingTime.Get()
		if okI != okJ {
			return !okI
		}
		if mi != mj {
			return mi < mj
		}
		return conflicts[i].ID < conflicts[j].ID
	})

	existing := make([]models.ExistingBooking, 0, len(conflicts))
	for _, rec := range conflicts {
		existing = append(existing, models.ExistingBooking{ID: rec.ID, Time: rec.BookingTime.Ptr()})
	}

	return &models.CheckAvailabilityResponse{
		Available:        false,
		Reason:           reasonFor(conflicts),
		ExistingBookings: existing,
	}
}

func reasonFor(conflicts []models.Booking) string {
	reason := ReasonSlotBooked
	for _, rec := range conflicts {
		if !rec.IsBlocked {
			continue
		}
		if !rec.BookingTime.IsSet() {
			return ReasonDateBlocked
		}
		reason = ReasonSlotBlocked
	}
	return reason
}

// overlaps treats a missing time on either side as occupying the whole date.
func overlaps(requested, existing models.SlotTime, policy Policy) bool {
	rm, rok := requested.Get()
	em, eok := existing.Get()
	if !rok || !eok {
		return true
	}
	if policy.Mode == MatchWindow {
		diff := rm - em
		if diff < 0 {
			diff = -diff
		}
		return time.Duration(diff)*time.Minute < policy.SlotDuration
	}
	return rm == em
}
