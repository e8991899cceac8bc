package repository

import (
	"context"
	"sync"
	"time"

	"gprbooking/internal/models"
)

type MemoryStateRepository struct {
	mu         sync.Mutex
	days       map[string]dayEntry
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

type dayEntry struct {
	records   []models.Booking
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{
		days:       make(map[string]dayEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) GetDay(_ context.Context, date string) ([]models.Booking, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.days[date]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		delete(r.days, date)
		return nil, false, nil
	}
	return append([]models.Booking(nil), entry.records...), true, nil
}

func (r *MemoryStateRepository) SetDay(_ context.Context, date string, records []models.Booking, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := dayEntry{records: append([]models.Booking(nil), records...)}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.days[date] = entry
	return nil
}

func (r *MemoryStateRepository) InvalidateDay(_ context.Context, date string) error {
	r.mu.Lock()
	delete(r.days, date)
	r.mu.Unlock()
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
