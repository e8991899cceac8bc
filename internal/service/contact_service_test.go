package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/events"
	"gprbooking/internal/models"
	"gprbooking/internal/repository"
	"gprbooking/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validContact() ContactInput {
	return ContactInput{
		Name:      "Ann",
		Email:     "ann@example.com",
		Service:   "gpr-scan",
		Message:   "Need a slab scan before coring.",
		IPAddress: "203.0.113.5",
	}
}

func TestContactService_Submit(t *testing.T) {
	repo := new(mockContactRepo)
	repo.On("CreateContactSubmission", mock.Anything, mock.AnythingOfType("*models.ContactSubmission")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.ContactSubmission).ID = "c1"
		}).
		Return(nil)
	tasks := &fakeTasks{}
	bus := &fakePublisher{}
	svc := NewContactService(repo, repository.NewMemoryStateRepository(), bus, tasks, 5, time.Hour, nil)

	sub, err := svc.Submit(context.Background(), validContact())
	require.NoError(t, err)
	assert.Equal(t, "c1", sub.ID)
	assert.Equal(t, "203.0.113.5", sub.IPAddress)
	assert.Equal(t, []string{events.EventContactSubmitted}, bus.events)
	assert.Equal(t, []string{worker.TaskSheetsAppendContact, worker.TaskNotifyContact}, tasks.types())
}

func TestContactService_Validation(t *testing.T) {
	svc := NewContactService(new(mockContactRepo), nil, nil, nil, 5, time.Hour, nil)

	cases := map[string]func(in *ContactInput){
		"name":    func(in *ContactInput) { in.Name = "" },
		"email":   func(in *ContactInput) { in.Email = "ann at example" },
		"message": func(in *ContactInput) { in.Message = "   " },
	}
	for field, edit := range cases {
		in := validContact()
		edit(&in)
		_, err := svc.Submit(context.Background(), in)
		var ve *availability.ValidationError
		require.ErrorAs(t, err, &ve, field)
		assert.Equal(t, field, ve.Field)
	}

	in := validContact()
	in.Message = strings.Repeat("x", maxMessageLength+1)
	_, err := svc.Submit(context.Background(), in)
	assert.True(t, availability.IsValidation(err))
}

func TestContactService_RateLimit(t *testing.T) {
	repo := new(mockContactRepo)
	repo.On("CreateContactSubmission", mock.Anything, mock.Anything).Return(nil)
	svc := NewContactService(repo, repository.NewMemoryStateRepository(), nil, nil, 2, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Submit(ctx, validContact())
		require.NoError(t, err)
	}
	_, err := svc.Submit(ctx, validContact())
	assert.ErrorIs(t, err, ErrRateLimited)

	// Same address from another IP is still limited by email.
	other := validContact()
	other.IPAddress = "198.51.100.7"
	_, err = svc.Submit(ctx, other)
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different sender is unaffected.
	fresh := validContact()
	fresh.Email = "bob@example.com"
	fresh.IPAddress = "198.51.100.8"
	_, err = svc.Submit(ctx, fresh)
	assert.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CreateContactSubmission", 3)
}

func TestContactService_StorageError(t *testing.T) {
	repo := new(mockContactRepo)
	repo.On("CreateContactSubmission", mock.Anything, mock.Anything).Return(errors.New("readonly database"))
	tasks := &fakeTasks{}
	svc := NewContactService(repo, nil, nil, tasks, 5, time.Hour, nil)

	_, err := svc.Submit(context.Background(), validContact())
	assert.ErrorIs(t, err, availability.ErrStorageUnavailable)
	assert.Empty(t, tasks.types())
}

func TestContactService_List(t *testing.T) {
	repo := new(mockContactRepo)
	repo.On("ListContactSubmissions", mock.Anything, 10, 0).
		Return([]*models.ContactSubmission{{ID: "c1"}}, 1, nil)
	svc := NewContactService(repo, nil, nil, nil, 5, time.Hour, nil)

	items, total, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)

	_, _, err = svc.List(context.Background(), -1, 0)
	assert.True(t, availability.IsValidation(err))
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services.yaml")
	content := `services:
  - id: utility-locate
    name: Utility locate
    duration_minutes: 60
    sort_order: 2
    is_active: true
  - id: gpr-scan
    name: Concrete GPR scan
    description: Rebar and post-tension cable mapping
    duration_minutes: 120
    sort_order: 1
    is_active: true
  - id: legacy
    name: Legacy
    is_active: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	active := catalog.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "gpr-scan", active[0].ID)
	assert.Equal(t, 120, active[0].DurationMinutes)
	assert.Equal(t, "utility-locate", active[1].ID)

	_, ok := catalog.Get("legacy")
	assert.False(t, ok)
	svc, ok := catalog.Get(" gpr-scan ")
	assert.True(t, ok)
	assert.Equal(t, "Concrete GPR scan", svc.Name)
}

func TestLoadCatalogErrors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = NewCatalog([]models.SurveyService{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)

	_, err = NewCatalog([]models.SurveyService{{ID: " "}})
	assert.Error(t, err)
}
