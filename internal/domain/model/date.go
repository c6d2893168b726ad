package model

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DateLayout is the wire format of event dates.
const DateLayout = "2006/01/02"

// epoch anchors day offsets used for temporal grouping.
var epoch = civil.Date{Year: 2000, Month: time.January, Day: 1}

// Date is a calendar date without time of day or zone.
type Date struct {
	d civil.Date
}

// NewDate builds a Date from its parts. Out-of-range parts are normalised like time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date{d: civil.DateOf(t)}
}

// ParseDate parses a YYYY/MM/DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String formats the date as YYYY/MM/DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d/%02d/%02d", d.d.Year, int(d.d.Month), d.d.Day)
}

// DayOffset is the number of whole days since 2000-01-01 (negative before it).
func (d Date) DayOffset() int {
	return d.d.DaysSince(epoch)
}

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool { return d.d.Before(o.d) }

// After reports whether d is a later day than o.
func (d Date) After(o Date) bool { return d.d.After(o.d) }

// Equal reports whether d and o are the same day.
func (d Date) Equal(o Date) bool { return d.d == o.d }

// IsZero reports whether d is the zero value, which no parsed date produces.
func (d Date) IsZero() bool { return d.d == civil.Date{} }

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
