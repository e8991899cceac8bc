package api

import (
	"errors"
	"net/http"

	"gprbooking/internal/availability"
	"gprbooking/internal/metrics"
	"gprbooking/internal/service"
)

const contactThanks = "Thanks for getting in touch. We will reply within one business day."

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.svc.Booking.Check(r.Context(), q.Get("date"), q.Get("time"), q.Get("service"))
	if err != nil {
		if availability.IsValidation(err) {
			metrics.IncAvailabilityCheck("invalid")
		} else {
			metrics.IncAvailabilityCheck("error")
		}
		s.writeServiceError(w, r, err)
		return
	}

	if res.Available {
		metrics.IncAvailabilityCheck("available")
	} else {
		metrics.IncAvailabilityCheck("unavailable")
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBookingInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.svc.Booking.CreateBooking(r.Context(), in)
	if err != nil {
		var unavailable *service.SlotUnavailableError
		if errors.As(err, &unavailable) && unavailable.Result != nil {
			metrics.IncBookingConflict("booking")
			writeJSON(w, http.StatusConflict, unavailable.Result)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	metrics.IncBookingCreated()
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.svc.Catalog.Active()})
}

func (s *HTTPServer) handleContact(w http.ResponseWriter, r *http.Request) {
	var in service.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		metrics.IncContactSubmission("invalid")
		s.writeServiceError(w, r, err)
		return
	}
	in.IPAddress = s.ips.clientIP(r)
	in.UserAgent = r.UserAgent()

	sub, err := s.svc.Contact.Submit(r.Context(), in)
	if err != nil {
		switch {
		case availability.IsValidation(err):
			metrics.IncContactSubmission("invalid")
		case errors.Is(err, service.ErrRateLimited):
			metrics.IncContactSubmission("rate_limited")
		default:
			metrics.IncContactSubmission("error")
		}
		s.writeServiceError(w, r, err)
		return
	}

	metrics.IncContactSubmission("accepted")
	writeJSON(w, http.StatusCreated, map[string]string{"id": sub.ID, "message": contactThanks})
}
