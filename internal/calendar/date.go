// Package calendar normalizes date strings into timezone-free calendar dates
// and provides the day-difference, age, and formatting helpers built on them.
package calendar

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned by ParseStrict and the decoders when the input is
// not a real calendar date.
var ErrInvalidDate = errors.New("invalid calendar date")

const isoLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// fallbackLayouts are tried in order for strings that are not in the
// canonical YYYY-MM-DD form.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-1-2",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Date is a year/month/day triple with no time of day and no location.
// The zero value is the invalid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a Date without validating it. Use Valid to check the result.
func New(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// FromTime returns the calendar date of t in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the calendar date of now in now's location.
func Today(now time.Time) Date {
	return FromTime(now)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Valid reports whether d names a real day of the proleptic Gregorian calendar.
func (d Date) Valid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return d.Day <= daysIn(d.Year, d.Month)
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// String renders d as YYYY-MM-DD, or "" for an invalid date.
func (d Date) String() string {
	if !d.Valid() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns d shifted by n calendar days. Invalid dates are returned unchanged.
func (d Date) AddDays(n int) Date {
	if !d.Valid() {
		return d
	}
	return FromTime(d.Time(time.UTC).AddDate(0, 0, n))
}

// Compare returns -1, 0 or +1 depending on whether d is before, equal to, or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// Days returns the number of whole calendar days from start to end. The
// result is negative when start is after end and 0 when either is invalid.
func Days(start, end Date) int {
	if !start.Valid() || !end.Valid() {
		return 0
	}
	// Unix seconds at UTC midnight; time.Duration would saturate past ~292 years.
	return int((end.Time(time.UTC).Unix() - start.Time(time.UTC).Unix()) / secondsPerDay)
}

// ParseStrict parses the canonical YYYY-MM-DD form and rejects anything that
// is not a real calendar date.
func ParseStrict(s string) (Date, error) {
	if !canonicalShape(s) {
		return Date{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidDate, s)
	}
	if !digits(s[0:4]) || !digits(s[5:7]) || !digits(s[8:10]) {
		return Date{}, fmt.Errorf("%w: %q has non-numeric components", ErrInvalidDate, s)
	}
	y, _ := strconv.Atoi(s[0:4])
	m, _ := strconv.Atoi(s[5:7])
	day, _ := strconv.Atoi(s[8:10])

	d := Date{Year: y, Month: time.Month(m), Day: day}
	if !d.Valid() {
		return Date{}, fmt.Errorf("%w: %q is out of range", ErrInvalidDate, s)
	}
	return d, nil
}

// Parse converts s into a Date and never fails. Canonical YYYY-MM-DD input
// is decomposed directly so no timezone can shift the day. Other inputs go
// through the fallback layouts and keep the date as written in their own
// offset. Empty input yields the date of now; unparseable input yields the
// invalid zero Date.
func Parse(s string, now time.Time) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Today(now)
	}
	if canonicalShape(s) {
		d, err := ParseStrict(s)
		if err != nil {
			return Date{}
		}
		return d
	}
	d, _ := parseFallback(s)
	return d
}

// DaysBetween parses both endpoints and returns the whole-day difference.
// An empty end means now; an empty start yields 0.
func DaysBetween(start, end string, now time.Time) int {
	if strings.TrimSpace(start) == "" {
		return 0
	}
	from := Parse(start, now)
	to := Today(now)
	if strings.TrimSpace(end) != "" {
		to = Parse(end, now)
	}
	return Days(from, to)
}

func parseFallback(s string) (Date, bool) {
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), true
		}
	}
	return Date{}, false
}

// decode accepts canonical input strictly and falls back to the other layouts.
func decode(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if canonicalShape(s) {
		return ParseStrict(s)
	}
	if d, ok := parseFallback(s); ok {
		return d, nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// MarshalJSON encodes d as "YYYY-MM-DD", or null for the zero Date.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts null, "", or any supported date string.
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	parsed, err := decode(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalText supports form and query binding.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := decode(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner for DATE columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = FromTime(v)
	case string:
		parsed, err := decode(v)
		if err != nil {
			return err
		}
		*d = parsed
	case []byte:
		parsed, err := decode(string(v))
		if err != nil {
			return err
		}
		*d = parsed
	default:
		return fmt.Errorf("calendar: cannot scan %T into Date", src)
	}
	return nil
}

// Value implements driver.Valuer; the zero Date is stored as NULL.
func (d Date) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, nil
	}
	return d.String(), nil
}

func canonicalShape(s string) bool {
	return len(s) == len(isoLayout) && s[4] == '-' && s[7] == '-'
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
