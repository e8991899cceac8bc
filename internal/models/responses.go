package models

// Wire contracts shared by the website frontend and the admin dashboard.
// Field names and nullability are fixed; do not rename json tags.

type ExistingBooking struct {
	ID   string  `json:"id"`
	Time *string `json:"time"`
}

type CheckAvailabilityResponse struct {
	Available        bool              `json:"available"`
	Reason           string            `json:"reason,omitempty"`
	ExistingBookings []ExistingBooking `json:"existingBookings,omitempty"`
}

type CreatedBooking struct {
	ID          string  `json:"id"`
	JobNumber   string  `json:"job_number"`
	Date        string  `json:"date"`
	BookingTime *string `json:"booking_time"`
	Service     string  `json:"service"`
	Status      string  `json:"status"`
}

type CustomerRef struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsExisting bool   `json:"isExisting"`
}

type CreateBookingResponse struct {
	Booking  CreatedBooking `json:"booking"`
	Customer CustomerRef    `json:"customer"`
}

type BookingListItem struct {
	ID            string  `json:"id"`
	Date          string  `json:"date"`
	BookingTime   *string `json:"booking_time"`
	Service       string  `json:"service"`
	Status        string  `json:"status"`
	CustomerEmail string  `json:"customer_email"`
	IsBlocked     bool    `json:"is_blocked"`
}

type GetBookingsResponse struct {
	Bookings []BookingListItem `json:"bookings"`
	Total    int               `json:"total"`
}

type AdminActionResponse struct {
	Success           bool   `json:"success"`
	Action            string `json:"action"`
	AffectedBookingID string `json:"affectedBookingId,omitempty"`
	Message           string `json:"message"`
}

// NewCreateBookingResponse maps a committed booking and its customer.
func NewCreateBookingResponse(b *Booking, c *Customer, isExisting bool) *CreateBookingResponse {
	return &CreateBookingResponse{
		Booking: CreatedBooking{
			ID:          b.ID,
			JobNumber:   b.JobNumber,
			Date:        FormatDate(b.Date),
			BookingTime: b.BookingTime.Ptr(),
			Service:     b.Service,
			Status:      b.Status,
		},
		Customer: CustomerRef{
			ID:         c.ID,
			Email:      c.Email,
			IsExisting: isExisting,
		},
	}
}

// NewGetBookingsResponse maps a page of bookings and the unpaged total.
func NewGetBookingsResponse(bookings []*Booking, total int) *GetBookingsResponse {
	items := make([]BookingListItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, BookingListItem{
			ID:            b.ID,
			Date:          FormatDate(b.Date),
			BookingTime:   b.BookingTime.Ptr(),
			Service:       b.Service,
			Status:        b.Status,
			CustomerEmail: b.CustomerEmail,
			IsBlocked:     b.IsBlocked,
		})
	}
	return &GetBookingsResponse{Bookings: items, Total: total}
}
