package domain

import (
	"math"
	"time"
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start.UTC(), End: end.UTC()}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

func (r TimeRange) Validate() error {
	if !r.End.After(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Minutes is the whole number of minutes covered by the range.
func (r TimeRange) Minutes() int {
	return DurationMinutes(r.Start, r.End)
}

// Equal reports whether both bounds are the same instant. This is the matching
// rule for slot lookups: ranges that merely overlap are different slots.
func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start.Before(o.End) && o.Start.Before(r.End)
}

// Contains reports whether t falls in [Start, End].
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func DurationMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}

// Window returns [now, now+d] in UTC.
func Window(now time.Time, d time.Duration) TimeRange {
	now = now.UTC()
	return TimeRange{Start: now, End: now.Add(d)}
}

// StartOfWeek returns midnight UTC of the Sunday that starts t's week.
func StartOfWeek(t time.Time) time.Time {
	t = t.UTC()
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// EndOfWeek returns the last instant of the Saturday ending t's week.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// Hours sums the lengths of the ranges in hours, rounded to one decimal.
func Hours(ranges []TimeRange) float64 {
	var total time.Duration
	for _, r := range ranges {
		if r.End.After(r.Start) {
			total += r.End.Sub(r.Start)
		}
	}
	return math.Round(total.Hours()*10) / 10
}
