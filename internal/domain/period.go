// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is a calendar unit used by period tokens.
type Unit int

// Calendar units.
const (
	UnitDay Unit = iota
	UnitWeek
	UnitMonth
	UnitYear
)

// String returns the string representation of the unit.
func (u Unit) String() string {
	switch u {
	case UnitDay:
		return "day"
	case UnitWeek:
		return "week"
	case UnitMonth:
		return "month"
	case UnitYear:
		return "year"
	default:
		return "unknown"
	}
}

// ParseUnit maps a unit letter (d, w, m, y; case-insensitive) to a Unit.
func ParseUnit(c byte) (Unit, error) {
	switch c {
	case 'd', 'D':
		return UnitDay, nil
	case 'w', 'W':
		return UnitWeek, nil
	case 'm', 'M':
		return UnitMonth, nil
	case 'y', 'Y':
		return UnitYear, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, string(c))
	}
}

// Period is a positive count of calendar units, e.g. "2W" or "1M".
type Period struct {
	Count int
	Unit  Unit
}

// String formats the period back into its token form.
func (p Period) String() string {
	var letter string
	switch p.Unit {
	case UnitDay:
		letter = "D"
	case UnitWeek:
		letter = "W"
	case UnitMonth:
		letter = "M"
	case UnitYear:
		letter = "Y"
	default:
		letter = "?"
	}
	return strconv.Itoa(p.Count) + letter
}

// ParsePeriodToken parses a period token of the form <digits?><unit>.
//
// A bare unit letter means a count of one. A token made of a single digit is
// rejected as an invalid unit rather than defaulting to anything.
func ParsePeriodToken(token string) (Period, error) {
	if token == "" {
		return Period{}, fmt.Errorf("%w: empty token", ErrInvalidPeriodFormat)
	}

	unit, err := ParseUnit(token[len(token)-1])
	if err != nil {
		return Period{}, err
	}

	if len(token) == 1 {
		return Period{Count: 1, Unit: unit}, nil
	}

	prefix := token[:len(token)-1]
	if strings.IndexFunc(prefix, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return Period{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPeriodFormat, prefix)
	}

	count, err := strconv.Atoi(prefix)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q: %v", ErrInvalidPeriodFormat, prefix, err)
	}
	if count == 0 {
		return Period{}, fmt.Errorf("%w: count must be positive", ErrInvalidPeriodFormat)
	}

	return Period{Count: count, Unit: unit}, nil
}

// AddTo returns t advanced by n times the period.
// Month and year steps keep the day of month of t, clamped to the length of
// the target month, so they never drift when computed from a fixed origin.
func (p Period) AddTo(t time.Time, n int) time.Time {
	steps := p.Count * n
	switch p.Unit {
	case UnitDay:
		return t.AddDate(0, 0, steps)
	case UnitWeek:
		return t.AddDate(0, 0, 7*steps)
	case UnitMonth:
		return addMonths(t, steps)
	case UnitYear:
		return addMonths(t, 12*steps)
	default:
		return t
	}
}

func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	total := int(month) - 1 + months
	year += total / 12
	total %= 12
	if total < 0 {
		total += 12
		year--
	}
	target := time.Month(total + 1)

	if last := daysIn(year, target); day > last {
		day = last
	}

	return time.Date(year, target, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
