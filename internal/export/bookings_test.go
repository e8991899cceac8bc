package export

import (
	"bytes"
	"testing"
	"time"

	"gprbooking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteBookings(t *testing.T) {
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bookings := []*models.Booking{
		{
			JobNumber: "BLK-20240601-001", Date: date, Service: "admin-block",
			Status: models.StatusConfirmed, IsBlocked: true, Notes: "rig service",
		},
		{
			JobNumber: "GPR-20240601-001", Date: date, BookingTime: models.At(10, 0), Service: "gpr-scan",
			Status: models.StatusPending, CustomerName: "Jo", CustomerEmail: "jo@example.com",
		},
		{
			JobNumber: "GPR-20240601-002", Date: date, BookingTime: models.At(14, 0), Service: "gpr-scan",
			Status: models.StatusCancelled, CustomerName: "Al", CustomerEmail: "al@example.com",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, bookings, date, date.AddDate(0, 0, 6)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	title, _ := f.GetCellValue(SheetName, "A1")
	assert.Equal(t, "Period: 2024-06-01 - 2024-06-07", title)

	header, _ := f.GetCellValue(SheetName, "A3")
	assert.Equal(t, "Job Number", header)

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "BLK-20240601-001", rows[3][0])
	assert.Equal(t, "all day", rows[3][2])
	assert.Equal(t, "BLOCKED", rows[3][5])
	assert.Equal(t, "10:00", rows[4][2])
	assert.Equal(t, "jo@example.com", rows[4][6])

	blockStyle, _ := f.GetCellStyle(SheetName, "A4")
	pendingStyle, _ := f.GetCellStyle(SheetName, "A5")
	cancelledStyle, _ := f.GetCellStyle(SheetName, "A6")
	assert.NotEqual(t, blockStyle, pendingStyle)
	assert.NotEqual(t, pendingStyle, cancelledStyle)
}

func TestWriteBookingsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBookings(&buf, nil, time.Time{}, time.Time{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	title, _ := f.GetCellValue(SheetName, "A1")
	assert.Equal(t, "Period: open - open", title)
}

func TestFileName(t *testing.T) {
	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "bookings.xlsx", FileName(time.Time{}, time.Time{}))
	assert.Equal(t, "bookings_2024-06-01_to_open.xlsx", FileName(from, time.Time{}))
	assert.Equal(t, "bookings_2024-06-01_to_2024-06-30.xlsx", FileName(from, from.AddDate(0, 0, 29)))
}
