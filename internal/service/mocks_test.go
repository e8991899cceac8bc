package service

import (
	"context"
	"sync"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) FindBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

func (m *mockRepo) CreateBookingWithLock(
	ctx context.Context,
	b *models.Booking,
	c *models.Customer,
	p availability.Policy,
) (bool, error) {
	args := m.Called(ctx, b, c, p)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) CreateBlock(ctx context.Context, b *models.Booking, p availability.Policy) error {
	return m.Called(ctx, b, p).Error(0)
}

func (m *mockRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, int, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.Booking), args.Int(1), args.Error(2)
}

func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, id string, v int64, s string) error {
	return m.Called(ctx, id, v, s).Error(0)
}

type mockContactRepo struct {
	mock.Mock
}

func (m *mockContactRepo) CreateContactSubmission(ctx context.Context, s *models.ContactSubmission) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockContactRepo) ListContactSubmissions(ctx context.Context, limit, offset int) ([]*models.ContactSubmission, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*models.ContactSubmission), args.Int(1), args.Error(2)
}

type recordedTask struct {
	TaskType string
	EntityID string
	Payload  any
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks []recordedTask
	err   error
}

func (f *fakeTasks) EnqueueTask(_ context.Context, taskType, entityID string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, recordedTask{TaskType: taskType, EntityID: entityID, Payload: payload})
	return f.err
}

func (f *fakeTasks) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t.TaskType)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) PublishJSON(eventType string, _ any) error {
	f.mu.Lock()
	f.events = append(f.events, eventType)
	f.mu.Unlock()
	return nil
}

type fakeInvalidator struct {
	dates []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, date time.Time) {
	f.dates = append(f.dates, models.FormatDate(date))
}
