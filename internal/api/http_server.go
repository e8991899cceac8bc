package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/config"
	"gprbooking/internal/database"
	"gprbooking/internal/logging"
	"gprbooking/internal/models"
	"gprbooking/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 64 << 10

// BookingsMirror rewrites the spreadsheet copy of the bookings table.
type BookingsMirror interface {
	ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error
}

// Services bundles what the HTTP handlers call into. Mirror and Ready are optional.
type Services struct {
	Booking *service.BookingService
	Admin   *service.AdminService
	Contact *service.ContactService
	Catalog *service.Catalog
	Mirror  BookingsMirror
	Ready   func(ctx context.Context) error
}

// HTTPServer serves the public booking API and the admin dashboard API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	auth    *AdminAuth
	limiter *rateLimiter
	ips     *ipResolver
	handler http.Handler
	server  *http.Server
	log     *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, auth *AdminAuth, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		auth:    auth,
		limiter: newRateLimiter(cfg.RateLimit),
		ips:     newIPResolver(cfg.HTTP.TrustedProxies),
		log:     logging.Component(logger, "http"),
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(srv.limiter, srv.ips, handler)
	handler = corsMiddleware(cfg.HTTP.AllowedOrigins, handler)
	handler = loggingMiddleware(srv.log, srv.ips, handler)
	handler = recoverMiddleware(srv.log, handler)
	handler = requestIDMiddleware(handler)
	srv.handler = handler

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/v1/availability", s.handleAvailability)
	mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/services", s.handleServices)
	mux.HandleFunc("POST /api/v1/contact", s.handleContact)

	mux.HandleFunc("POST /api/v1/admin/login", s.handleAdminLogin)
	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.auth.Require(h))
	}
	admin("GET /api/v1/admin/bookings", s.handleAdminBookings)
	admin("GET /api/v1/admin/bookings/export", s.handleAdminExport)
	admin("POST /api/v1/admin/bookings/{id}/{action}", s.handleAdminBookingAction)
	admin("POST /api/v1/admin/blocks", s.handleAdminBlock)
	admin("POST /api/v1/admin/blocks/{id}/unblock", s.handleAdminUnblock)
	admin("GET /api/v1/admin/contacts", s.handleAdminContacts)
	admin("POST /api/v1/admin/sheets/resync", s.handleSheetsResync)
}

// Handler returns the fully wrapped handler; tests drive it through httptest.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ready(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Readiness check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return &availability.ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &availability.ValidationError{Field: "body", Message: "body must hold a single JSON object"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// errorStatus maps service and storage errors onto HTTP status codes and a client-safe message.
func errorStatus(err error) (int, string) {
	var ve *availability.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, database.ErrBookingNotFound):
		return http.StatusNotFound, database.ErrBookingNotFound.Error()
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, database.ErrSlotTaken),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, database.ErrNotBlock):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, service.ErrRateLimited.Error()
	case errors.Is(err, availability.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, availability.ErrStorageUnavailable.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	var ve *availability.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, code, map[string]string{"error": msg, "field": ve.Field})
		return
	}
	writeError(w, code, msg)
}
