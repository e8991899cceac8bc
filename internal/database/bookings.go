package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gprbooking/internal/availability"
	"gprbooking/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `b.id, b.job_number, b.date, b.booking_time, b.service, b.status, b.is_blocked,
	COALESCE(b.customer_id, ''), b.customer_email, COALESCE(c.name, ''), COALESCE(c.phone, ''),
	b.address, b.notes, b.created_at, b.updated_at, b.version`

const bookingFrom = ` FROM bookings b LEFT JOIN customers c ON c.id = b.customer_id`

// ConflictError is returned when a write would double-book a slot.
// It carries the same verdict an availability check would report.
type ConflictError struct {
	Result *models.CheckAvailabilityResponse
}

func (e *ConflictError) Error() string {
	if e.Result != nil && e.Result.Reason != "" {
		return "slot is not available: " + e.Result.Reason
	}
	return ErrSlotTaken.Error()
}

func (e *ConflictError) Is(target error) bool { return target == ErrSlotTaken }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b       models.Booking
		dateStr string
	)
	err := row.Scan(
		&b.ID, &b.JobNumber, &dateStr, &b.BookingTime, &b.Service, &b.Status, &b.IsBlocked,
		&b.CustomerID, &b.CustomerEmail, &b.CustomerName, &b.CustomerPhone,
		&b.Address, &b.Notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Date, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	return &b, nil
}

func activeOnDate(ctx context.Context, q querier, date time.Time) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + bookingFrom + `
		WHERE b.date = ? AND b.status <> ?
		ORDER BY b.booking_time IS NOT NULL, b.booking_time, b.id`
	rows, err := q.QueryContext(ctx, query, models.FormatDate(date), models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings by date: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// FindBookingsByDate returns every non-cancelled record on date, blocks included.
func (db *DB) FindBookingsByDate(ctx context.Context, date time.Time) ([]models.Booking, error) {
	return activeOnDate(ctx, db, date)
}

// CreateBookingWithLock re-checks availability and inserts the booking in one
// transaction. The customer is matched by email or created. It returns
// whether the customer already existed.
func (db *DB) CreateBookingWithLock(
	ctx context.Context,
	booking *models.Booking,
	customer *models.Customer,
	policy availability.Policy,
) (bool, error) {
	var isExisting bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		records, err := activeOnDate(ctx, tx, booking.Date)
		if err != nil {
			return fmt.Errorf("failed to check availability in tx: %w", err)
		}
		req := availability.Request{Date: booking.Date, Time: booking.BookingTime, Service: booking.Service}
		if verdict := availability.Evaluate(req, records, policy); !verdict.Available {
			return &ConflictError{Result: verdict}
		}

		isExisting, err = upsertCustomer(ctx, tx, customer)
		if err != nil {
			return err
		}

		booking.IsBlocked = false
		booking.CustomerID = customer.ID
		booking.CustomerEmail = customer.Email
		booking.CustomerName = customer.Name
		booking.CustomerPhone = customer.Phone
		if booking.Status == "" {
			booking.Status = models.StatusPending
		}
		return insertBooking(ctx, tx, booking, "GPR")
	})
	if err != nil {
		return false, err
	}
	return isExisting, nil
}

// CreateBlock stores an administrator block. It refuses to cover a slot that
// already holds an active record; the admin cancels that record first.
func (db *DB) CreateBlock(ctx context.Context, block *models.Booking, policy availability.Policy) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		records, err := activeOnDate(ctx, tx, block.Date)
		if err != nil {
			return fmt.Errorf("failed to check availability in tx: %w", err)
		}
		req := availability.Request{Date: block.Date, Time: block.BookingTime, Service: block.Service}
		if verdict := availability.Evaluate(req, records, policy); !verdict.Available {
			return &ConflictError{Result: verdict}
		}

		block.IsBlocked = true
		block.Status = models.StatusConfirmed
		block.CustomerID = ""
		block.CustomerEmail = ""
		return insertBooking(ctx, tx, block, "BLK")
	})
}

func insertBooking(ctx context.Context, tx *sql.Tx, b *models.Booking, prefix string) error {
	jobNumber, err := nextJobNumber(ctx, tx, prefix, b.Date)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	var customerID any
	if b.CustomerID != "" {
		customerID = b.CustomerID
	}

	query := `INSERT INTO bookings (
			id, job_number, date, booking_time, service, status, is_blocked,
			customer_id, customer_email, address, notes, created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	_, err = tx.ExecContext(ctx, query,
		id, jobNumber, models.FormatDate(b.Date), b.BookingTime, b.Service, b.Status, b.IsBlocked,
		customerID, b.CustomerEmail, b.Address, b.Notes, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	b.ID = id
	b.JobNumber = jobNumber
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

// nextJobNumber yields PREFIX-YYYYMMDD-NNN, numbered per booking date.
func nextJobNumber(ctx context.Context, tx *sql.Tx, prefix string, date time.Time) (string, error) {
	stem := fmt.Sprintf("%s-%s-", prefix, date.Format("20060102"))
	var count int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE job_number LIKE ?`, stem+"%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("failed to allocate job number: %w", err)
	}
	return fmt.Sprintf("%s%03d", stem, count+1), nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// ListBookings returns one page of bookings plus the unpaged total.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	var (
		conds []string
		args  []any
	)
	if !filter.From.IsZero() {
		conds = append(conds, "b.date >= ?")
		args = append(args, models.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "b.date <= ?")
		args = append(args, models.FormatDate(filter.To))
	}
	if filter.Status != "" {
		conds = append(conds, "b.status = ?")
		args = append(args, filter.Status)
	}
	if !filter.IncludeBlocked {
		conds = append(conds, "b.is_blocked = 0")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings b`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + bookingFrom + where +
		` ORDER BY b.date ASC, b.booking_time IS NOT NULL, b.booking_time, b.created_at`
	pageArgs := append([]any{}, args...)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, filter.Limit, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// UpdateBookingStatusWithVersion applies an optimistic status change.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}
