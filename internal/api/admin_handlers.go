package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/export"
	"gprbooking/internal/metrics"
	"gprbooking/internal/models"
	"gprbooking/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	actionResync    = "sheets_resync"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *HTTPServer) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	token, expiresAt, err := s.auth.Login(req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, ErrAdminDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, ErrInvalidCredentials):
		s.log.Warn().Str("username", req.Username).Str("remote", s.ips.clientIP(r)).Msg("Admin login failed")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	default:
		s.writeServiceError(w, r, err)
		return
	}

	s.log.Info().Str("username", req.Username).Msg("Admin logged in")
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt.UTC()})
}

func (s *HTTPServer) handleAdminBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseBookingFilter(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.svc.Admin.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleAdminBookingAction(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	action := r.PathValue("action")
	actor := AdminFromContext(r.Context())

	var (
		res *models.AdminActionResponse
		err error
	)
	switch action {
	case service.ActionConfirm:
		res, err = s.svc.Admin.ConfirmBooking(r.Context(), id, actor)
	case service.ActionComplete:
		res, err = s.svc.Admin.CompleteBooking(r.Context(), id, actor)
	case service.ActionCancel:
		res, err = s.svc.Admin.CancelBooking(r.Context(), id, actor)
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		return
	}
	s.writeAdminResult(w, r, action, id, res, err)
}

func (s *HTTPServer) handleAdminBlock(w http.ResponseWriter, r *http.Request) {
	var in service.BlockInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeAdminResult(w, r, service.ActionBlock, "", nil, err)
		return
	}
	res, err := s.svc.Admin.BlockSlot(r.Context(), in, AdminFromContext(r.Context()))
	if err != nil && isSlotConflict(err) {
		metrics.IncBookingConflict("block")
	}
	s.writeAdminResult(w, r, service.ActionBlock, "", res, err)
}

func (s *HTTPServer) handleAdminUnblock(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	res, err := s.svc.Admin.UnblockSlot(r.Context(), id, AdminFromContext(r.Context()))
	s.writeAdminResult(w, r, service.ActionUnblock, id, res, err)
}

// writeAdminResult answers dashboard actions with an AdminActionResponse, also on failure.
func (s *HTTPServer) writeAdminResult(
	w http.ResponseWriter,
	r *http.Request,
	action, id string,
	res *models.AdminActionResponse,
	err error,
) {
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	code, msg := errorStatus(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("action", action).Str("booking_id", id).Msg("Admin action failed")
	}
	if ids := conflictingIDs(err); len(ids) > 0 {
		msg += " (conflicts with " + strings.Join(ids, ", ") + ")"
		if id == "" {
			id = ids[0]
		}
	}
	writeJSON(w, code, models.AdminActionResponse{
		Success:           false,
		Action:            action,
		AffectedBookingID: id,
		Message:           msg,
	})
}

// conflictingIDs lists the records behind a refused write, in verdict order.
func conflictingIDs(err error) []string {
	var unavailable *service.SlotUnavailableError
	if !errors.As(err, &unavailable) || unavailable.Result == nil {
		return nil
	}
	ids := make([]string, 0, len(unavailable.Result.ExistingBookings))
	for _, b := range unavailable.Result.ExistingBookings {
		ids = append(ids, b.ID)
	}
	return ids
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := optionalDate(q, "from")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	to, err := optionalDate(q, "to")
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		s.writeServiceError(w, r, &availability.ValidationError{Field: "to", Message: "to must not be before from"})
		return
	}

	bookings, err := s.svc.Admin.Bookings(r.Context(), models.BookingFilter{From: from, To: to, IncludeBlocked: true})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteBookings(&buf, bookings, from, to); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, export.FileName(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleAdminContacts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r.URL.Query())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items, total, err := s.svc.Contact.List(r.Context(), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.ContactSubmission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": items, "total": total})
}

func (s *HTTPServer) handleSheetsResync(w http.ResponseWriter, r *http.Request) {
	if s.svc.Mirror == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.AdminActionResponse{
			Action:  actionResync,
			Message: "sheets mirror is not configured",
		})
		return
	}
	bookings, err := s.svc.Admin.Bookings(r.Context(), models.BookingFilter{IncludeBlocked: true})
	if err != nil {
		s.writeAdminResult(w, r, actionResync, "", nil, err)
		return
	}
	if err := s.svc.Mirror.ReplaceBookingsSheet(r.Context(), bookings); err != nil {
		s.log.Error().Err(err).Msg("Sheets resync failed")
		writeJSON(w, http.StatusBadGateway, models.AdminActionResponse{
			Action:  actionResync,
			Message: "sheets resync failed",
		})
		return
	}
	s.log.Info().Int("rows", len(bookings)).Str("admin", AdminFromContext(r.Context())).Msg("Sheets mirror rebuilt")
	writeJSON(w, http.StatusOK, models.AdminActionResponse{
		Success: true,
		Action:  actionResync,
		Message: fmt.Sprintf("Mirrored %d bookings", len(bookings)),
	})
}

func parseBookingFilter(q url.Values) (models.BookingFilter, error) {
	var (
		filter models.BookingFilter
		err    error
	)
	if filter.From, err = optionalDate(q, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = optionalDate(q, "to"); err != nil {
		return filter, err
	}
	filter.Status = strings.TrimSpace(q.Get("status"))
	if raw := q.Get("include_blocked"); raw != "" {
		if filter.IncludeBlocked, err = strconv.ParseBool(raw); err != nil {
			return filter, &availability.ValidationError{Field: "include_blocked", Message: "must be true or false"}
		}
	}
	filter.Limit, filter.Offset, err = parsePage(q)
	return filter, err
}

func parsePage(q url.Values) (limit, offset int, err error) {
	limit = defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, &availability.ValidationError{
				Field:   "limit",
				Message: fmt.Sprintf("limit must be between 1 and %d", maxPageSize),
			}
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, &availability.ValidationError{Field: "offset", Message: "offset must be a non-negative integer"}
		}
	}
	return limit, offset, nil
}

func optionalDate(q url.Values, key string) (time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, &availability.ValidationError{Field: key, Message: err.Error()}
	}
	return d, nil
}

func isSlotConflict(err error) bool {
	return errors.Is(err, service.ErrSlotUnavailable)
}
