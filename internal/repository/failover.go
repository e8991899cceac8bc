package repository

import (
	"context"
	"sync"
	"time"

	"gprbooking/internal/domain"
	"gprbooking/internal/metrics"
	"gprbooking/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository uses primary until it errors, then serves from
// fallback and probes primary again once per recoveryInterval.
type FailoverStateRepository struct {
	primary  domain.StateRepository
	fallback domain.StateRepository
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverStateRepository) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown {
		return true
	}
	if r.now().Sub(r.lastCheck) > recoveryInterval {
		r.lastCheck = r.now()
		return true
	}
	return false
}

func (r *FailoverStateRepository) report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if r.isDown {
			r.logger.Info().Msg("Primary state repository recovered")
			metrics.SetStateDegraded(false)
		}
		r.isDown = false
		return
	}
	if !r.isDown {
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
		metrics.SetStateDegraded(true)
	}
	r.isDown = true
	r.lastCheck = r.now()
}

// IsDegraded reports whether calls are currently served by the fallback.
func (r *FailoverStateRepository) IsDegraded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}

func (r *FailoverStateRepository) GetDay(ctx context.Context, date string) ([]models.Booking, bool, error) {
	if r.usePrimary() {
		records, ok, err := r.primary.GetDay(ctx, date)
		r.report(err)
		if err == nil {
			return records, ok, nil
		}
	}
	return r.fallback.GetDay(ctx, date)
}

func (r *FailoverStateRepository) SetDay(ctx context.Context, date string, records []models.Booking, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SetDay(ctx, date, records, ttl)
		r.report(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.SetDay(ctx, date, records, ttl)
}

// InvalidateDay always clears the fallback too; it may hold entries written
// while primary was down.
func (r *FailoverStateRepository) InvalidateDay(ctx context.Context, date string) error {
	fallbackErr := r.fallback.InvalidateDay(ctx, date)
	if r.usePrimary() {
		err := r.primary.InvalidateDay(ctx, date)
		r.report(err)
		if err == nil {
			return fallbackErr
		}
	}
	return fallbackErr
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.report(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
