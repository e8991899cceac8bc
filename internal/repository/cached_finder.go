package repository

import (
	"context"
	"sync"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/domain"
	"gprbooking/internal/models"

	"github.com/rs/zerolog"
)

// CachedFinder serves FindBookingsByDate from the day cache when possible.
// Cache failures are logged and bypassed; only store errors reach callers.
//
// Every Invalidate bumps the date's generation. A read only fills the cache
// if the generation it started under is still current, so a snapshot taken
// before a write never outlives that write's invalidation.
type CachedFinder struct {
	next   availability.BookingFinder
	cache  domain.StateRepository
	ttl    time.Duration
	logger *zerolog.Logger

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedFinder(next availability.BookingFinder, cache domain.StateRepository, ttl time.Duration, logger *zerolog.Logger) *CachedFinder {
	return &CachedFinder{next: next, cache: cache, ttl: ttl, logger: logger, generations: make(map[string]uint64)}
}

func (f *CachedFinder) generation(key string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generations[key]
}

func (f *CachedFinder) FindBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error) {
	key := models.FormatDate(date)

	records, ok, err := f.cache.GetDay(ctx, key)
	if err != nil {
		f.logger.Warn().Err(err).Str("date", key).Msg("Day cache read failed")
	} else if ok {
		return records, nil
	}

	started := f.generation(key)
	records, err = f.next.FindBookingsByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generations[key] != started {
		return records, nil
	}
	if err := f.cache.SetDay(ctx, key, records, f.ttl); err != nil {
		f.logger.Warn().Err(err).Str("date", key).Msg("Day cache write failed")
	}
	return records, nil
}

// Invalidate drops the cached records for date after a write.
func (f *CachedFinder) Invalidate(ctx context.Context, date time.Time) {
	key := models.FormatDate(date)
	f.mu.Lock()
	f.generations[key]++
	f.mu.Unlock()

	if err := f.cache.InvalidateDay(ctx, key); err != nil {
		f.logger.Warn().Err(err).Str("date", key).Msg("Day cache invalidation failed")
	}
}
