package domain

import (
	"fmt"
	"iter"
	"strings"
	"time"
)

// DateLayout is the calendar date format used in job names and reports.
const DateLayout = "2006-01-02"

// Now is the sentinel end date resolved to the current instant.
const Now = "now"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"20060102T150405",
	DateLayout,
	"20060102",
	"2006-01",
	"2006",
}

// ParseDate parses a calendar date or instant. Values without a zone are UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// Interval is a calendar-day-aligned, inclusive time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval builds the interval starting at start and spanning size.
// The end is start + size - 1 day, moved to the last microsecond of that day.
func NewInterval(start time.Time, size Period) Interval {
	last := size.AddTo(start, 1).AddDate(0, 0, -1)
	return Interval{Start: start, End: endOfDay(last)}
}

// StartDate returns the start formatted as YYYY-MM-DD.
func (i Interval) StartDate() string {
	return i.Start.Format(DateLayout)
}

// EndDate returns the end formatted as YYYY-MM-DD.
func (i Interval) EndDate() string {
	return i.End.Format(DateLayout)
}

// String returns a human readable representation.
func (i Interval) String() string {
	return i.StartDate() + " -> " + i.EndDate()
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Microsecond)*999999, t.Location())
}

// IntervalGenerator lazily produces the periods between two instants.
// It is a one-shot forward iterator; build a new one to start over.
type IntervalGenerator struct {
	start     time.Time
	end       time.Time
	size      Period
	frequency Period
	next      int
	done      bool
}

// NewIntervalGenerator creates a generator over [start, end].
// Period starts are start + n*frequency and stop at the first start after end.
func NewIntervalGenerator(start, end time.Time, size, frequency Period) *IntervalGenerator {
	return &IntervalGenerator{
		start:     start,
		end:       end,
		size:      size,
		frequency: frequency,
	}
}

// GenerateIntervals parses its inputs and returns a generator.
// end may be "now", resolved once through the clock. An empty frequency token
// makes the frequency equal to the size.
func GenerateIntervals(start, end, sizeToken, frequencyToken string, clock func() time.Time) (*IntervalGenerator, error) {
	startTime, err := ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("parsing start: %w", err)
	}

	var endTime time.Time
	if strings.EqualFold(strings.TrimSpace(end), Now) {
		if clock == nil {
			clock = time.Now
		}
		endTime = clock()
	} else {
		endTime, err = ParseDate(end)
		if err != nil {
			return nil, fmt.Errorf("parsing end: %w", err)
		}
	}

	size, err := ParsePeriodToken(sizeToken)
	if err != nil {
		return nil, fmt.Errorf("parsing period size: %w", err)
	}

	frequency := size
	if frequencyToken != "" {
		frequency, err = ParsePeriodToken(frequencyToken)
		if err != nil {
			return nil, fmt.Errorf("parsing period frequency: %w", err)
		}
	}

	return NewIntervalGenerator(startTime, endTime, size, frequency), nil
}

// Next returns the next interval, or false once the range is exhausted.
func (g *IntervalGenerator) Next() (Interval, bool) {
	if g.done {
		return Interval{}, false
	}

	periodStart := g.frequency.AddTo(g.start, g.next)
	if periodStart.After(g.end) {
		g.done = true
		return Interval{}, false
	}
	g.next++

	return NewInterval(periodStart, g.size), true
}

// All drains the generator as a range-over-func sequence.
func (g *IntervalGenerator) All() iter.Seq[Interval] {
	return func(yield func(Interval) bool) {
		for {
			interval, ok := g.Next()
			if !ok || !yield(interval) {
				return
			}
		}
	}
}

// Collect drains the generator into a slice.
func (g *IntervalGenerator) Collect() []Interval {
	var intervals []Interval
	for interval := range g.All() {
		intervals = append(intervals, interval)
	}
	return intervals
}
