package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"gprbooking/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const adminIssuer = "gprbooking-admin"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAdminDisabled      = errors.New("admin access is not configured")
)

// dummyHash keeps unknown-user logins as slow as a real bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("gprbooking-dummy"), bcrypt.MinCost)

type adminCtxKey struct{}

// AdminClaims identifies a signed-in dashboard user.
type AdminClaims struct {
	jwt.RegisteredClaims
}

// AdminAuth issues and verifies dashboard tokens (HS256).
type AdminAuth struct {
	secret []byte
	ttl    time.Duration
	users  map[string][]byte
	now    func() time.Time
}

func NewAdminAuth(cfg config.AdminConfig) *AdminAuth {
	users := make(map[string][]byte, len(cfg.Users))
	for _, u := range cfg.Users {
		users[strings.ToLower(strings.TrimSpace(u.Username))] = []byte(u.PasswordHash)
	}
	return &AdminAuth{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenDuration(),
		users:  users,
		now:    time.Now,
	}
}

func (a *AdminAuth) Enabled() bool {
	return a != nil && len(a.users) > 0 && len(a.secret) > 0
}

// Login checks the password against the stored bcrypt hash and returns a signed token.
func (a *AdminAuth) Login(username, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrAdminDisabled
	}
	name := strings.ToLower(strings.TrimSpace(username))
	hash, ok := a.users[name]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminIssuer,
			Subject:   name,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify returns the username a token was issued to.
func (a *AdminAuth) Verify(raw string) (string, error) {
	if !a.Enabled() {
		return "", ErrAdminDisabled
	}
	token, err := jwt.ParseWithClaims(raw, &AdminClaims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if _, known := a.users[claims.Subject]; !known {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Require rejects requests without a valid bearer token and stores the admin name in the context.
func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeError(w, http.StatusServiceUnavailable, ErrAdminDisabled.Error())
			return
		}
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := a.Verify(strings.TrimSpace(raw))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminCtxKey{}, user)))
	})
}

// AdminFromContext returns the admin set by Require.
func AdminFromContext(ctx context.Context) string {
	user, _ := ctx.Value(adminCtxKey{}).(string)
	return user
}
