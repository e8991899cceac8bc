// Package google mirrors bookings and contact submissions into Google Sheets
// so office staff can work from a spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"gprbooking/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet = "Bookings"
	contactsSheet = "Contacts"

	// Bookings columns A..M; status lives in F, updated_at in M.
	bookingsLastCol  = "M"
	statusCol        = "F"
	updatedAtCol     = "M"
	timestampLayout  = "2006-01-02 15:04:05"
	cacheWarmTimeout = 30 * time.Second
)

var (
	ErrRowNotFound = errors.New("booking row not found")

	rowInRange = regexp.MustCompile(`![A-Z]+(\d+)`)
)

var bookingHeaders = []interface{}{
	"ID", "Job Number", "Date", "Time", "Service", "Status", "Blocked",
	"Customer Email", "Customer Name", "Phone", "Address", "Created At", "Updated At",
}

type SheetsService struct {
	service         *sheets.Service
	bookingsSheetID string
	contactsSheetID string
	rowCache        map[string]int
	cacheMu         sync.RWMutex
	now             func() time.Time
}

// NewSheetsService authenticates with a service-account key file.
// contactsSheetID may be empty; contacts then go to the bookings spreadsheet.
func NewSheetsService(ctx context.Context, credentialsFile, bookingsSheetID, contactsSheetID string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsService(srv, bookingsSheetID, contactsSheetID), nil
}

func newSheetsService(srv *sheets.Service, bookingsSheetID, contactsSheetID string) *SheetsService {
	if contactsSheetID == "" {
		contactsSheetID = bookingsSheetID
	}
	return &SheetsService{
		service:         srv,
		bookingsSheetID: bookingsSheetID,
		contactsSheetID: contactsSheetID,
		rowCache:        make(map[string]int),
		now:             time.Now,
	}
}

// TestConnection reads the header cell of the bookings sheet.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// StartCacheRefresh warms the row cache now and then every interval until ctx is done.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, interval time.Duration) {
	refresh := func() error {
		warmCtx, cancel := context.WithTimeout(ctx, cacheWarmTimeout)
		defer cancel()
		return s.WarmUpCache(warmCtx)
	}
	_ = refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = refresh()
		}
	}
}

// WarmUpCache rebuilds the booking id -> row index from column A.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellString(row); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// AppendBooking adds a new row and remembers where it landed.
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.bookingsSheetID, bookingsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row, ok := rowFromRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(booking.ID, row)
		}
	}
	return nil
}

// UpsertBooking rewrites the booking's row, appending it when absent.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if errors.Is(err, ErrRowNotFound) {
		return s.AppendBooking(ctx, booking)
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", bookingsSheet, rowIdx, bookingsLastCol, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{bookingRowValues(booking)},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// UpdateBookingStatus writes the status and updated-at cells in one request.
func (s *SheetsService) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	rowIdx, err := s.FindBookingRow(ctx, bookingID)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{
				Range:  fmt.Sprintf("%s!%s%d", bookingsSheet, statusCol, rowIdx),
				Values: [][]interface{}{{status}},
			},
			{
				Range:  fmt.Sprintf("%s!%s%d", bookingsSheet, updatedAtCol, rowIdx),
				Values: [][]interface{}{{s.now().UTC().Format(timestampLayout)}},
			},
		},
	}
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.bookingsSheetID, req).Context(ctx).Do()
	return err
}

// FindBookingRow returns the 1-based row of bookingID, scanning column A on a cache miss.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID string) (int, error) {
	if bookingID == "" {
		return 0, fmt.Errorf("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellString(row) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceBookingsSheet rewrites the whole sheet from the store.
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []*models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.bookingsSheetID, bookingsSheet+"!A:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, bookingHeaders)
	for _, b := range bookings {
		values = append(values, bookingRowValues(b))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, bookingsSheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	cache := make(map[string]int, len(bookings))
	for i, b := range bookings {
		cache[b.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// AppendContact adds a contact submission to the Contacts sheet.
func (s *SheetsService) AppendContact(ctx context.Context, c *models.ContactSubmission) error {
	if c == nil {
		return fmt.Errorf("contact submission is nil")
	}
	row := []interface{}{
		c.ID,
		c.CreatedAt.UTC().Format(timestampLayout),
		c.Name,
		c.Email,
		c.Phone,
		c.Service,
		c.Source,
		c.Message,
	}
	_, err := s.service.Spreadsheets.Values.Append(s.contactsSheetID, contactsSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.JobNumber,
		models.FormatDate(b.Date),
		b.BookingTime.String(),
		b.Service,
		b.Status,
		b.IsBlocked,
		b.CustomerEmail,
		b.CustomerName,
		b.CustomerPhone,
		b.Address,
		b.CreatedAt.UTC().Format(timestampLayout),
		b.UpdatedAt.UTC().Format(timestampLayout),
	}
}

func cellString(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// rowFromRange extracts the first row number of an A1 range like "Bookings!A10:M10".
func rowFromRange(a1 string) (int, bool) {
	m := rowInRange.FindStringSubmatch(a1)
	if len(m) != 2 {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
