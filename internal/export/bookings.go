// Package export renders booking listings as Excel workbooks for the office.
package export

import (
	"fmt"
	"io"
	"time"

	"gprbooking/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Bookings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	headerRow = 3
)

var columns = []struct {
	title string
	width float64
}{
	{"Job Number", 20},
	{"Date", 12},
	{"Time", 8},
	{"Service", 18},
	{"Status", 12},
	{"Customer", 22},
	{"Email", 28},
	{"Phone", 16},
	{"Address", 30},
	{"Notes", 30},
}

// Row fills per status; blocks get their own colour.
var fills = map[string]string{
	models.StatusPending:   "#FFEB9C",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusCompleted: "#DDEBF7",
	models.StatusCancelled: "#FFC7CE",
	"blocked":              "#D9D9D9",
}

// FileName is the suggested download name for a period.
func FileName(from, to time.Time) string {
	if from.IsZero() && to.IsZero() {
		return "bookings.xlsx"
	}
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", dateOrOpen(from), dateOrOpen(to))
}

func dateOrOpen(d time.Time) string {
	if d.IsZero() {
		return "open"
	}
	return models.FormatDate(d)
}

// WriteBookings writes an XLSX workbook with one row per booking.
func WriteBookings(w io.Writer, bookings []*models.Booking, from, to time.Time) error {
	f, err := buildWorkbook(bookings, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func buildWorkbook(bookings []*models.Booking, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	title := fmt.Sprintf("Period: %s - %s", dateOrOpen(from), dateOrOpen(to))
	_ = f.SetCellValue(SheetName, "A1", title)
	_ = f.MergeCell(SheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(SheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s%d", name, headerRow)
		_ = f.SetCellValue(SheetName, cell, col.title)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
		_ = f.SetColWidth(SheetName, name, name, col.width)
	}

	styles := make(map[string]int, len(fills))
	for key, color := range fills {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("error creating style: %w", err)
		}
		styles[key] = id
	}

	for i, b := range bookings {
		row := headerRow + 1 + i
		start := fmt.Sprintf("A%d", row)
		values := rowValues(b)
		if err := f.SetSheetRow(SheetName, start, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		_ = f.SetCellStyle(SheetName, start, fmt.Sprintf("%s%d", lastCol, row), styles[styleKey(b)])
	}

	_ = f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      headerRow,
		TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
		ActivePane:  "bottomLeft",
	})
	return f, nil
}

func styleKey(b *models.Booking) string {
	if b.IsBlocked && b.Active() {
		return "blocked"
	}
	return b.Status
}

func rowValues(b *models.Booking) []interface{} {
	slot := b.BookingTime.String()
	if slot == "" {
		slot = "all day"
	}
	customer := b.CustomerName
	if b.IsBlocked {
		customer = "BLOCKED"
	}
	return []interface{}{
		b.JobNumber,
		models.FormatDate(b.Date),
		slot,
		b.Service,
		b.Status,
		customer,
		b.CustomerEmail,
		b.CustomerPhone,
		b.Address,
		b.Notes,
	}
}
