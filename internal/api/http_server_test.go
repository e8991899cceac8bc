package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/config"
	"gprbooking/internal/database"
	"gprbooking/internal/export"
	"gprbooking/internal/models"
	"gprbooking/internal/repository"
	"gprbooking/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdmin    = "office"
	testPassword = "correct horse"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type testEnv struct {
	db      *database.DB
	server  *HTTPServer
	handler http.Handler
	mirror  *fakeMirror
}

type fakeMirror struct {
	rows int
	err  error
}

func (m *fakeMirror) ReplaceBookingsSheet(_ context.Context, bookings []*models.Booking) error {
	m.rows = len(bookings)
	return m.err
}

func testAdminConfig(t *testing.T) config.AdminConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AdminConfig{
		JWTSecret: testSecret,
		TokenTTL:  "1h",
		Users:     []config.AdminUser{{Username: testAdmin, PasswordHash: string(hash)}},
	}
}

func newTestEnv(t *testing.T, apiCfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog, err := service.NewCatalog([]models.SurveyService{
		{ID: "gpr-scan", Name: "Concrete GPR scan", DurationMinutes: 120, IsActive: true},
		{ID: "utility-locate", Name: "Utility locate", DurationMinutes: 60, SortOrder: 1, IsActive: true},
	})
	require.NoError(t, err)

	policy := availability.DefaultPolicy()
	checker := availability.NewChecker(db, policy)
	mirror := &fakeMirror{}
	svcs := Services{
		Booking: service.NewBookingService(db, checker, catalog, nil, nil, nil, 180, time.UTC, &logger),
		Admin:   service.NewAdminService(db, policy, nil, nil, nil, &logger),
		Contact: service.NewContactService(db, repository.NewMemoryStateRepository(), nil, nil, 2, time.Hour, &logger),
		Catalog: catalog,
		Mirror:  mirror,
	}
	srv := NewHTTPServer(apiCfg, NewAdminAuth(testAdminConfig(t)), svcs, &logger)
	return &testEnv{db: db, server: srv, handler: srv.Handler(), mirror: mirror}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.10:5555"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"username": testAdmin, "password": testPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func futureDate(days int) string {
	return time.Now().UTC().AddDate(0, 0, days).Format(models.DateLayout)
}

func bookingBody(date, slot string) map[string]string {
	return map[string]string{
		"date":    date,
		"time":    slot,
		"service": "gpr-scan",
		"name":    "Jo Site",
		"email":   "jo@example.com",
		"address": "12 Quarry Rd",
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (e *testEnv) createBooking(t *testing.T, date, slot string) models.CreateBookingResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(date, slot), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.CreateBookingResponse](t, rec)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	env.server.svc.Ready = func(context.Context) error { return errors.New("database closed") }
	rec = env.do(t, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database closed")
}

func TestAvailabilityThenBooking(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	date := futureDate(10)
	path := "/api/v1/availability?date=" + date + "&time=10:00&service=gpr-scan"

	rec := env.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	free := decode[models.CheckAvailabilityResponse](t, rec)
	assert.True(t, free.Available)
	assert.Empty(t, free.ExistingBookings)

	created := env.createBooking(t, date, "10:00")
	assert.Equal(t, date, created.Booking.Date)
	assert.Equal(t, "10:00", *created.Booking.BookingTime)
	assert.Equal(t, models.StatusPending, created.Booking.Status)
	assert.NotEmpty(t, created.Booking.JobNumber)
	assert.Equal(t, "jo@example.com", created.Customer.Email)
	assert.False(t, created.Customer.IsExisting)

	rec = env.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	taken := decode[models.CheckAvailabilityResponse](t, rec)
	assert.False(t, taken.Available)
	assert.Equal(t, availability.ReasonSlotBooked, taken.Reason)
	require.Len(t, taken.ExistingBookings, 1)
	assert.Equal(t, created.Booking.ID, taken.ExistingBookings[0].ID)

	// Same slot again: 409 carrying the verdict.
	rec = env.do(t, http.MethodPost, "/api/v1/bookings", bookingBody(date, "10:00"), "")
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[models.CheckAvailabilityResponse](t, rec)
	assert.False(t, conflict.Available)
	assert.Equal(t, availability.ReasonSlotBooked, conflict.Reason)

	// Another slot the same day, same customer.
	second := env.createBooking(t, date, "14:00")
	assert.True(t, second.Customer.IsExisting)
	assert.Equal(t, created.Customer.ID, second.Customer.ID)
}

func TestAvailabilityValidation(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	cases := map[string]string{
		"date":    "/api/v1/availability?service=gpr-scan",
		"time":    "/api/v1/availability?date=2030-01-01&time=25:99&service=gpr-scan",
		"service": "/api/v1/availability?date=2030-01-01",
	}
	for field, path := range cases {
		rec := env.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, field)
		body := decode[map[string]string](t, rec)
		assert.Equal(t, field, body["field"])
	}

	rec := env.do(t, http.MethodPost, "/api/v1/availability", nil, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	past := bookingBody(time.Now().UTC().AddDate(0, 0, -1).Format(models.DateLayout), "10:00")
	rec := env.do(t, http.MethodPost, "/api/v1/bookings", past, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unknown := bookingBody(futureDate(5), "10:00")
	unknown["service"] = "sewer-camera"
	rec = env.do(t, http.MethodPost, "/api/v1/bookings", unknown, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "service", decode[map[string]string](t, rec)["field"])

	extra := bookingBody(futureDate(5), "10:00")
	extra["coupon"] = "FREE"
	rec = env.do(t, http.MethodPost, "/api/v1/bookings", extra, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader("{not json"))
	raw := httptest.NewRecorder()
	env.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestServicesCatalog(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(t, http.MethodGet, "/api/v1/services", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]models.SurveyService](t, rec)
	require.Len(t, body["services"], 2)
	assert.Equal(t, "gpr-scan", body["services"][0].ID)
}

func TestContactSubmission(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	msg := map[string]string{
		"name":    "Ann",
		"email":   "ann@example.com",
		"message": "Can you scan a garage slab next week?",
	}

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/v1/contact", msg, "")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decode[map[string]string](t, rec)
		assert.NotEmpty(t, body["id"])
		assert.Equal(t, contactThanks, body["message"])
	}

	rec := env.do(t, http.MethodPost, "/api/v1/contact", msg, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	invalid := map[string]string{"name": "Ann", "email": "nope", "message": "hi"}
	rec = env.do(t, http.MethodPost, "/api/v1/contact", invalid, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"username": testAdmin, "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/login", map[string]string{"username": "ghost", "password": testPassword}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := env.login(t)
	assert.Equal(t, 3, strings.Count(token, ".")+1)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	for _, path := range []string{"/api/v1/admin/bookings", "/api/v1/admin/contacts", "/api/v1/admin/bookings/export"} {
		rec := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = env.do(t, http.MethodGet, path, nil, "not.a.token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestAdminBookingLifecycle(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := env.login(t)
	date := futureDate(7)
	created := env.createBooking(t, date, "09:00")
	id := created.Booking.ID

	rec := env.do(t, http.MethodGet, "/api/v1/admin/bookings?from="+date+"&to="+date, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[models.GetBookingsResponse](t, rec)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Bookings, 1)
	assert.Equal(t, "jo@example.com", list.Bookings[0].CustomerEmail)

	// pending -> completed is not allowed
	rec = env.do(t, http.MethodPost, "/api/v1/admin/bookings/"+id+"/complete", nil, token)
	require.Equal(t, http.StatusConflict, rec.Code)
	failed := decode[models.AdminActionResponse](t, rec)
	assert.False(t, failed.Success)
	assert.Equal(t, service.ActionComplete, failed.Action)
	assert.Equal(t, id, failed.AffectedBookingID)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/bookings/"+id+"/confirm", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ok := decode[models.AdminActionResponse](t, rec)
	assert.True(t, ok.Success)
	assert.Equal(t, service.ActionConfirm, ok.Action)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/bookings/"+id+"/cancel", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	// cancelled frees the slot
	rec = env.do(t, http.MethodGet, "/api/v1/availability?date="+date+"&time=09:00&service=gpr-scan", nil, "")
	assert.True(t, decode[models.CheckAvailabilityResponse](t, rec).Available)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/bookings/missing/confirm", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/bookings/"+id+"/archive", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminBookingsQueryValidation(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := env.login(t)

	for _, query := range []string{
		"from=tomorrow",
		"status=archived",
		"include_blocked=maybe",
		"limit=0",
		"limit=10000",
		"offset=-1",
		"from=2030-02-01&to=2030-01-01",
	} {
		rec := env.do(t, http.MethodGet, "/api/v1/admin/bookings?"+query, nil, token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdminBlocks(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := env.login(t)
	date := futureDate(12)
	existing := env.createBooking(t, date, "10:00")

	// Blocking over an active booking is refused and names the booking to cancel first.
	rec := env.do(t, http.MethodPost, "/api/v1/admin/blocks", map[string]string{"date": date, "time": "10:00"}, token)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	refused := decode[models.AdminActionResponse](t, rec)
	assert.False(t, refused.Success)
	assert.Equal(t, service.ActionBlock, refused.Action)
	assert.Equal(t, existing.Booking.ID, refused.AffectedBookingID)
	assert.Contains(t, refused.Message, existing.Booking.ID)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/blocks", map[string]string{"date": date, "time": "15:00", "note": "rig service"}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	blocked := decode[models.AdminActionResponse](t, rec)
	assert.True(t, blocked.Success)
	require.NotEmpty(t, blocked.AffectedBookingID)

	rec = env.do(t, http.MethodGet, "/api/v1/availability?date="+date+"&time=15:00&service=utility-locate", nil, "")
	verdict := decode[models.CheckAvailabilityResponse](t, rec)
	assert.False(t, verdict.Available)
	assert.Equal(t, availability.ReasonSlotBlocked, verdict.Reason)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/bookings?include_blocked=true&from="+date, nil, token)
	assert.Equal(t, 2, decode[models.GetBookingsResponse](t, rec).Total)
	rec = env.do(t, http.MethodGet, "/api/v1/admin/bookings?from="+date, nil, token)
	assert.Equal(t, 1, decode[models.GetBookingsResponse](t, rec).Total)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/blocks/"+blocked.AffectedBookingID+"/unblock", nil, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/availability?date="+date+"&time=15:00&service=utility-locate", nil, "")
	assert.True(t, decode[models.CheckAvailabilityResponse](t, rec).Available)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/blocks/"+blocked.AffectedBookingID+"/unblock", nil, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/blocks", map[string]string{"date": "soon"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminExport(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := env.login(t)
	date := futureDate(3)
	env.createBooking(t, date, "08:00")

	rec := env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from="+date+"&to="+date, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from=x", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminContacts(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := env.login(t)

	rec := env.do(t, http.MethodGet, "/api/v1/admin/contacts", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"contacts":[],"total":0}`, rec.Body.String())

	env.do(t, http.MethodPost, "/api/v1/contact", map[string]string{
		"name": "Ann", "email": "ann@example.com", "message": "Quote please",
	}, "")

	rec = env.do(t, http.MethodGet, "/api/v1/admin/contacts?limit=10", nil, token)
	body := decode[struct {
		Contacts []models.ContactSubmission `json:"contacts"`
		Total    int                        `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Contacts, 1)
	assert.Equal(t, "Quote please", body.Contacts[0].Message)
	assert.NotContains(t, rec.Body.String(), "203.0.113.10")
}

func TestSheetsResync(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	token := env.login(t)
	env.createBooking(t, futureDate(4), "10:00")

	rec := env.do(t, http.MethodPost, "/api/v1/admin/sheets/resync", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.mirror.rows)

	env.mirror.err = errors.New("quota exceeded")
	rec = env.do(t, http.MethodPost, "/api/v1/admin/sheets/resync", nil, token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	env.server.svc.Mirror = nil
	rec = env.do(t, http.MethodPost, "/api/v1/admin/sheets/resync", nil, token)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	echoed := httptest.NewRecorder()
	env.handler.ServeHTTP(echoed, req)
	assert.Equal(t, "req-42", echoed.Header().Get(requestIDHeader))
}

func TestHTTPRateLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}})

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/v1/services", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/services", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// probes stay reachable
	rec = env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}})

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("192.0.2.%d", i+1))
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
	assert.Equal(t, 1, env.server.limiter.size())
}

func TestHTTPRateLimitBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{
		HTTP:      config.APIHTTPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
		RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1},
	})

	send := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
		req.RemoteAddr = "10.1.2.3:4000"
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2"))
}

func TestClientIP(t *testing.T) {
	ips := newIPResolver([]string{"10.0.0.0/8", "127.0.0.1", "not-an-ip"})

	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"NoHeader", "198.51.100.7:4000", "", "198.51.100.7"},
		{"UntrustedPeerHeaderIgnored", "198.51.100.7:4000", "192.0.2.9", "198.51.100.7"},
		{"TrustedPeer", "10.0.0.5:4000", "192.0.2.9", "192.0.2.9"},
		{"SpoofedLeftHop", "10.0.0.5:4000", "1.1.1.1, 192.0.2.9", "192.0.2.9"},
		{"ChainOfProxies", "127.0.0.1:4000", "192.0.2.9, 10.0.0.7", "192.0.2.9"},
		{"GarbageHop", "10.0.0.5:4000", "junk", "10.0.0.5"},
		{"TrustedPeerNoHeader", "10.0.0.5:4000", "", "10.0.0.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			assert.Equal(t, tc.want, ips.clientIP(req))
		})
	}
}

func TestRateLimiterDropsIdleBuckets(t *testing.T) {
	l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 1})
	now := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastSweep.Store(now.UnixNano())

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("b"))
	assert.Equal(t, 2, l.size())

	now = now.Add(limiterIdleTTL + limiterSweepEvery)
	assert.True(t, l.allow("c"))
	assert.Equal(t, 1, l.size())
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{HTTP: config.APIHTTPConfig{AllowedOrigins: []string{"https://scan.example"}}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	req.Header.Set("Origin", "https://scan.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://scan.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&availability.ValidationError{Field: "date", Message: "bad"}, http.StatusBadRequest},
		{database.ErrBookingNotFound, http.StatusNotFound},
		{&service.SlotUnavailableError{}, http.StatusConflict},
		{database.ErrConcurrentModification, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{database.ErrNotBlock, http.StatusConflict},
		{service.ErrRateLimited, http.StatusTooManyRequests},
		{availability.ErrStorageUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, _ := errorStatus(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
