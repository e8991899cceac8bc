package models

import "time"

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// ValidStatus reports whether status is one of the known booking statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Booking struct {
	ID            string    `json:"id"`
	JobNumber     string    `json:"job_number"`
	Date          time.Time `json:"date"`
	BookingTime   SlotTime  `json:"booking_time"`
	Service       string    `json:"service"`
	Status        string    `json:"status"` // pending, confirmed, completed, cancelled
	IsBlocked     bool      `json:"is_blocked"`
	CustomerID    string    `json:"customer_id,omitempty"`
	CustomerEmail string    `json:"customer_email"`
	CustomerName  string    `json:"customer_name,omitempty"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int64     `json:"version"`
}

// Active reports whether the record still occupies its slot.
func (b *Booking) Active() bool {
	return b.Status != StatusCancelled
}

type Customer struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// BookingFilter narrows admin listings. Zero values mean "no constraint".
type BookingFilter struct {
	From           time.Time
	To             time.Time
	Status         string
	IncludeBlocked bool
	Limit          int
	Offset         int
}
