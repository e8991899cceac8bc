package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// SlotTime is an optional time of day. A zero SlotTime means "no time":
// the record or request covers the whole date.
type SlotTime struct {
	minutes int
	set     bool
}

// NoTime returns the empty SlotTime.
func NoTime() SlotTime { return SlotTime{} }

// At returns a SlotTime for hour:minute. It panics on out-of-range input;
// use ParseSlotTime for untrusted values.
func At(hour, minute int) SlotTime {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		panic(fmt.Sprintf("models: invalid time of day %02d:%02d", hour, minute))
	}
	return SlotTime{minutes: hour*60 + minute, set: true}
}

// ParseSlotTime accepts "HH:MM" or "HH:MM:SS". An empty string yields NoTime.
func ParseSlotTime(raw string) (SlotTime, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NoTime(), nil
	}
	layouts := []string{TimeLayout, "15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return At(t.Hour(), t.Minute()), nil
		}
	}
	return NoTime(), fmt.Errorf("invalid time of day %q; expected HH:MM", raw)
}

// Get returns minutes since midnight and whether a time is present.
func (t SlotTime) Get() (int, bool) {
	return t.minutes, t.set
}

func (t SlotTime) IsSet() bool { return t.set }

// String renders HH:MM, or "" when no time is set.
func (t SlotTime) String() string {
	if !t.set {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", t.minutes/60, t.minutes%60)
}

// Ptr returns nil for NoTime, otherwise a pointer to the HH:MM string.
// Response contracts use it for `string|null` fields.
func (t SlotTime) Ptr() *string {
	if !t.set {
		return nil
	}
	s := t.String()
	return &s
}

func (t SlotTime) Equal(other SlotTime) bool {
	return t.set == other.set && t.minutes == other.minutes
}

func (t SlotTime) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *SlotTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = NoTime()
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSlotTime(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value stores NULL for NoTime and HH:MM otherwise.
func (t SlotTime) Value() (driver.Value, error) {
	if !t.set {
		return nil, nil
	}
	return t.String(), nil
}

func (t *SlotTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = NoTime()
		return nil
	case string:
		parsed, err := ParseSlotTime(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		parsed, err := ParseSlotTime(string(v))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into SlotTime", src)
	}
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", raw)
	}
	return d, nil
}

// FormatDate renders the calendar part of d.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}
