package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"gprbooking/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingFinder struct {
	records []models.Booking
	err     error
	calls   int
}

func (f *countingFinder) FindBookingsByDate(_ context.Context, _ time.Time) ([]models.Booking, error) {
	f.calls++
	return f.records, f.err
}

// gatedFinder parks every read until release is closed.
type gatedFinder struct {
	records []models.Booking
	entered chan struct{}
	release chan struct{}
}

func (f *gatedFinder) FindBookingsByDate(_ context.Context, _ time.Time) ([]models.Booking, error) {
	f.entered <- struct{}{}
	<-f.release
	return f.records, nil
}

func TestCachedFinder(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("CachesAfterFirstRead", func(t *testing.T) {
		finder := &countingFinder{records: []models.Booking{{ID: "b1", Date: day}}}
		cf := NewCachedFinder(finder, NewMemoryStateRepository(), time.Minute, &logger)

		for i := 0; i < 3; i++ {
			got, err := cf.FindBookingsByDate(ctx, day)
			require.NoError(t, err)
			require.Len(t, got, 1)
		}
		assert.Equal(t, 1, finder.calls)

		cf.Invalidate(ctx, day)
		_, err := cf.FindBookingsByDate(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 2, finder.calls)
	})

	t.Run("StoreErrorNotCached", func(t *testing.T) {
		finder := &countingFinder{err: errors.New("db down")}
		cf := NewCachedFinder(finder, NewMemoryStateRepository(), time.Minute, &logger)

		_, err := cf.FindBookingsByDate(ctx, day)
		assert.Error(t, err)
		_, err = cf.FindBookingsByDate(ctx, day)
		assert.Error(t, err)
		assert.Equal(t, 2, finder.calls)
	})

	t.Run("CacheErrorsBypassed", func(t *testing.T) {
		cache := new(mockRepo)
		cache.On("GetDay", ctx, "2024-06-01").Return(nil, false, errors.New("redis gone")).Once()
		cache.On("SetDay", ctx, "2024-06-01", mock.Anything, time.Minute).Return(errors.New("redis gone")).Once()

		finder := &countingFinder{records: []models.Booking{{ID: "b1", Date: day}}}
		cf := NewCachedFinder(finder, cache, time.Minute, &logger)

		got, err := cf.FindBookingsByDate(ctx, day)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		cache.AssertExpectations(t)
	})

	t.Run("InvalidateDuringReadSkipsFill", func(t *testing.T) {
		store := NewMemoryStateRepository()
		finder := &gatedFinder{
			records: []models.Booking{{ID: "b1", Date: day, Status: models.StatusConfirmed}},
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		cf := NewCachedFinder(finder, store, time.Minute, &logger)

		done := make(chan []models.Booking, 1)
		go func() {
			got, err := cf.FindBookingsByDate(ctx, day)
			assert.NoError(t, err)
			done <- got
		}()

		<-finder.entered
		// The booking is cancelled and the day invalidated while the read is in flight.
		cf.Invalidate(ctx, day)
		close(finder.release)

		got := <-done
		assert.Len(t, got, 1)

		_, hit, err := store.GetDay(ctx, "2024-06-01")
		require.NoError(t, err)
		assert.False(t, hit, "pre-cancel snapshot must not be cached")
	})

	t.Run("ReadWithoutInvalidateStillFills", func(t *testing.T) {
		store := NewMemoryStateRepository()
		finder := &gatedFinder{
			records: []models.Booking{{ID: "b1", Date: day}},
			entered: make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		close(finder.release)
		cf := NewCachedFinder(finder, store, time.Minute, &logger)

		_, err := cf.FindBookingsByDate(ctx, day)
		require.NoError(t, err)
		_, hit, err := store.GetDay(ctx, "2024-06-01")
		require.NoError(t, err)
		assert.True(t, hit)
	})
}
