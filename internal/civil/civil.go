// Package civil implements wall-clock date arithmetic over IANA zones.
//
// A civil date is the calendar date a human in a given zone would read off
// the clock. The scheduling identity of a greeting is its civil date string,
// so conversions here must be deterministic across DST transitions: a wall
// time inside a spring-forward gap resolves to the first valid instant at or
// after it, and an ambiguous fall-back wall time resolves to the earlier UTC
// instant.
package civil

import (
	"fmt"
	"time"
)

// DateLayout is the canonical YYYY-MM-DD encoding.
const DateLayout = "2006-01-02"

// Date is a civil calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a strict YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid civil date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Today returns the civil date of the given instant in loc.
func Today(now time.Time, loc *time.Location) Date {
	lt := now.In(loc)
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

// SameMonthDay reports whether two dates share month and day. Recurrence
// matching ignores the year, so a Feb 29 anchor only matches in leap years.
func SameMonthDay(a, b Date) bool {
	return a.Month == b.Month && a.Day == b.Day
}

// At returns the UTC instant of wall time hour:min on d in loc.
//
// If the wall time falls in a DST gap, the result is the first valid instant
// at or after it (the transition itself). If the wall time is ambiguous, the
// earlier UTC instant wins.
func (d Date) At(hour, min int, loc *time.Location) time.Time {
	_, offStart := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc).Zone()
	_, offEnd := time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 0, loc).Zone()

	// Candidate instants assuming each of the day's offsets.
	wall := time.Date(d.Year, d.Month, d.Day, hour, min, 0, 0, time.UTC)
	cand1 := wall.Add(-time.Duration(offStart) * time.Second)
	cand2 := wall.Add(-time.Duration(offEnd) * time.Second)

	v1 := d.roundTrips(cand1, hour, min, loc)
	v2 := d.roundTrips(cand2, hour, min, loc)
	switch {
	case v1 && v2:
		if cand2.Before(cand1) {
			return cand2
		}
		return cand1
	case v1:
		return cand1
	case v2:
		return cand2
	}

	// The wall time was skipped. The first valid instant at or after it is
	// the transition point; binary-search for the offset change between the
	// two candidates.
	lo, hi := cand1, cand2
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	_, offLo := lo.In(loc).Zone()
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(loc).Zone(); off == offLo {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.UTC()
}

func (d Date) roundTrips(t time.Time, hour, min int, loc *time.Location) bool {
	lt := t.In(loc)
	return lt.Year() == d.Year && lt.Month() == d.Month && lt.Day() == d.Day &&
		lt.Hour() == hour && lt.Minute() == min
}
