package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date without time-of-day. It is comparable and can be
// used as a map key, which time.Time cannot safely be.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseCompactDate parses "20060102", the DWD MESS_DATUM encoding.
func ParseCompactDate(s string) (Date, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse compact date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns the date at UTC midnight.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// MonthKey returns the monthly aggregation bucket, e.g. "2024-07".
func (d Date) MonthKey() string {
	return fmt.Sprintf("%04d-%02d", d.Year, int(d.Month))
}

// YearKey returns the yearly aggregation bucket, e.g. "2024".
func (d Date) YearKey() string {
	return fmt.Sprintf("%04d", d.Year)
}

// TimeRange is an inclusive range of calendar dates.
type TimeRange struct {
	Start Date
	End   Date
}

// Contains reports whether d falls within the range, bounds included.
func (r TimeRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !r.End.Before(d)
}

// Key returns a filesystem-safe identifier for the range, used in cache paths.
func (r TimeRange) Key() string {
	return fmt.Sprintf("%04d%02d%02d-%04d%02d%02d",
		r.Start.Year, int(r.Start.Month), r.Start.Day,
		r.End.Year, int(r.End.Month), r.End.Day)
}
