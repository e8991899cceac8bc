package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gprbooking/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth_LoginAndVerify(t *testing.T) {
	auth := NewAdminAuth(testAdminConfig(t))
	require.True(t, auth.Enabled())

	now := time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return now }

	token, expiresAt, err := auth.Login(" Office ", testPassword)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	user, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, testAdmin, user)

	now = now.Add(2 * time.Hour)
	_, err = auth.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdminAuth_RejectsForeignTokens(t *testing.T) {
	auth := NewAdminAuth(testAdminConfig(t))

	claims := AdminClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    adminIssuer,
		Subject:   testAdmin,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	otherKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("another-secret-entirely"))
	require.NoError(t, err)
	_, err = auth.Verify(otherKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.Subject = "ghost"
	removedUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(removedUser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims.Subject = testAdmin
	claims.ExpiresAt = nil
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAdminAuth_Disabled(t *testing.T) {
	auth := NewAdminAuth(config.AdminConfig{})
	assert.False(t, auth.Enabled())

	_, _, err := auth.Login("office", "x")
	assert.ErrorIs(t, err, ErrAdminDisabled)

	protected := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/bookings", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminAuth_RequireSetsAdmin(t *testing.T) {
	auth := NewAdminAuth(testAdminConfig(t))
	token, _, err := auth.Login(testAdmin, testPassword)
	require.NoError(t, err)

	var seen string
	protected := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdminFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testAdmin, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic b2ZmaWNlOng=")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}
