package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE KEY - Day-granularity calendar date (a "night" is one DateKey)
// =============================================================================

// DateKey is a calendar date in UTC. Every fact, forecast point and
// recommendation is keyed on one.
type DateKey struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) DateKey {
	return DateKey{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its calendar date.
func DateOf(t time.Time) DateKey {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (DateKey, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return DateKey{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func Today() DateKey { return DateOf(time.Now().UTC()) }

// Comparison
func (d DateKey) Before(other DateKey) bool        { return d.t.Before(other.t) }
func (d DateKey) After(other DateKey) bool         { return d.t.After(other.t) }
func (d DateKey) Equal(other DateKey) bool         { return d.t.Equal(other.t) }
func (d DateKey) BeforeOrEqual(other DateKey) bool { return !d.After(other) }
func (d DateKey) AfterOrEqual(other DateKey) bool  { return !d.Before(other) }

// Arithmetic and properties
func (d DateKey) AddDays(n int) DateKey  { return DateKey{t: d.t.AddDate(0, 0, n)} }
func (d DateKey) Year() int              { return d.t.Year() }
func (d DateKey) Month() time.Month      { return d.t.Month() }
func (d DateKey) Day() int               { return d.t.Day() }
func (d DateKey) Weekday() time.Weekday  { return d.t.Weekday() }
func (d DateKey) IsZero() bool           { return d.t.IsZero() }
func (d DateKey) Time() time.Time        { return d.t }
func (d DateKey) String() string         { return d.t.Format("2006-01-02") }

// DaysBetween returns the whole days from one date to another.
func DaysBetween(from, to DateKey) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// =============================================================================
// PERIOD - Inclusive date range, the unit of batch work
// =============================================================================

// Period is an inclusive [Start, End] date range. Ingestion runs, forecast
// runs and generation runs all operate on a period.
type Period struct {
	Start DateKey
	End   DateKey
}

func NewPeriod(start, end DateKey) (Period, error) {
	if end.Before(start) {
		return Period{}, fmt.Errorf("%w: %s before %s", ErrInvalidDateRange, end, start)
	}
	return Period{Start: start, End: end}, nil
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(d DateKey) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Days returns every date in the period, in order.
func (p Period) Days() []DateKey {
	var days []DateKey
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
