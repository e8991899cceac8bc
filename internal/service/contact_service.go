package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/domain"
	"gprbooking/internal/events"
	"gprbooking/internal/models"
	"gprbooking/internal/worker"

	"github.com/rs/zerolog"
)

const maxMessageLength = 5000

type ContactInput struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Service   string `json:"service"`
	Message   string `json:"message"`
	Source    string `json:"source"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// ContactService stores contact form messages and alerts the office.
type ContactService struct {
	repo     domain.ContactRepository
	limiter  domain.StateRepository
	eventBus domain.EventPublisher
	tasks    domain.TaskEnqueuer
	limit    int
	window   time.Duration
	logger   *zerolog.Logger
}

func NewContactService(
	repo domain.ContactRepository,
	limiter domain.StateRepository,
	eventBus domain.EventPublisher,
	tasks domain.TaskEnqueuer,
	limit int,
	window time.Duration,
	logger *zerolog.Logger,
) *ContactService {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ContactService{
		repo:     repo,
		limiter:  limiter,
		eventBus: eventBus,
		tasks:    tasks,
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

func validateContact(in *ContactInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Message = strings.TrimSpace(in.Message)
	if in.Name == "" {
		return &availability.ValidationError{Field: "name", Message: "name is required"}
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return &availability.ValidationError{Field: "email", Message: "invalid email address"}
	}
	in.Email = addr.Address
	if in.Message == "" {
		return &availability.ValidationError{Field: "message", Message: "message is required"}
	}
	if len(in.Message) > maxMessageLength {
		return &availability.ValidationError{
			Field:   "message",
			Message: fmt.Sprintf("message must be at most %d characters", maxMessageLength),
		}
	}
	return nil
}

// allow counts the submission against both the sender address and the client IP.
// Limiter errors let the message through.
func (s *ContactService) allow(ctx context.Context, in ContactInput) bool {
	if s.limiter == nil {
		return true
	}
	keys := []string{"contact:email:" + strings.ToLower(in.Email)}
	if in.IPAddress != "" {
		keys = append(keys, "contact:ip:"+in.IPAddress)
	}
	for _, key := range keys {
		ok, err := s.limiter.CheckRateLimit(ctx, key, s.limit, s.window)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Contact rate limit check failed")
			continue
		}
		if !ok {
			return false
		}
	}
	return true
}

func (s *ContactService) Submit(ctx context.Context, in ContactInput) (*models.ContactSubmission, error) {
	if err := validateContact(&in); err != nil {
		return nil, err
	}
	if !s.allow(ctx, in) {
		return nil, ErrRateLimited
	}

	submission := &models.ContactSubmission{
		Name:      in.Name,
		Email:     in.Email,
		Phone:     strings.TrimSpace(in.Phone),
		Service:   strings.TrimSpace(in.Service),
		Message:   in.Message,
		Source:    strings.TrimSpace(in.Source),
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}
	if err := s.repo.CreateContactSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
	}

	s.logger.Info().Str("submission_id", submission.ID).Str("service", submission.Service).Msg("Contact submission stored")

	if s.eventBus != nil {
		payload := events.ContactEventPayload{
			SubmissionID: submission.ID,
			Name:         submission.Name,
			Email:        submission.Email,
			Service:      submission.Service,
		}
		if err := s.eventBus.PublishJSON(events.EventContactSubmitted, payload); err != nil {
			s.logger.Error().Err(err).Str("submission_id", submission.ID).Msg("publish event error")
		}
	}
	enqueueTask(ctx, s.tasks, s.logger, worker.TaskSheetsAppendContact, submission.ID, worker.TaskPayload{Contact: submission})
	enqueueTask(ctx, s.tasks, s.logger, worker.TaskNotifyContact, submission.ID, worker.TaskPayload{Contact: submission})

	return submission, nil
}

func (s *ContactService) List(ctx context.Context, limit, offset int) ([]*models.ContactSubmission, int, error) {
	if limit < 0 || offset < 0 {
		return nil, 0, &availability.ValidationError{Field: "limit", Message: "limit and offset must not be negative"}
	}
	items, total, err := s.repo.ListContactSubmissions(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", availability.ErrStorageUnavailable, err)
	}
	return items, total, nil
}
