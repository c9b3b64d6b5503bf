package domain

import (
	"time"
)

const (
	MaxSeriesSpan        = 180 * 24 * time.Hour
	MaxSeriesOccurrences = 366
)

// SlotSeries describes a repeating slot: First is the initial occurrence and
// Until is the last calendar day (UTC) an occurrence may start on.
type SlotSeries struct {
	First      TimeRange
	Recurrence Recurrence
	Until      time.Time
}

// ExpandSeries returns every occurrence of the series in start order. The
// expansion stops at the end of Until's day, MaxSeriesSpan after the first
// start, or after MaxSeriesOccurrences, whichever comes first. Monthly series
// skip months that do not have the first occurrence's day.
func ExpandSeries(series SlotSeries) ([]TimeRange, error) {
	if err := series.First.Validate(); err != nil {
		return nil, err
	}

	var step func(i int) (time.Time, bool)
	first := series.First.Start.UTC()
	switch series.Recurrence {
	case RecurrenceDaily:
		step = func(i int) (time.Time, bool) { return first.AddDate(0, 0, i), true }
	case RecurrenceWeekly:
		step = func(i int) (time.Time, bool) { return first.AddDate(0, 0, 7*i), true }
	case RecurrenceMonthly:
		step = func(i int) (time.Time, bool) {
			t := time.Date(first.Year(), first.Month()+time.Month(i), first.Day(),
				first.Hour(), first.Minute(), first.Second(), first.Nanosecond(), time.UTC)
			return t, t.Day() == first.Day()
		}
	default:
		return nil, Errorf(KindInvalidArgument, "recurrence %q does not repeat", series.Recurrence)
	}

	if series.Until.IsZero() {
		return nil, Errorf(KindInvalidArgument, "recurrence_end_date is required")
	}
	until := series.Until.UTC()
	limit := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if !limit.After(first) {
		return nil, Errorf(KindInvalidArgument, "recurrence_end_date is before the first slot")
	}
	if capAt := first.Add(MaxSeriesSpan); capAt.Before(limit) {
		limit = capAt
	}

	length := series.First.End.Sub(series.First.Start)
	out := make([]TimeRange, 0, 16)
	for i := 0; len(out) < MaxSeriesOccurrences; i++ {
		start, ok := step(i)
		if !start.Before(limit) {
			break
		}
		if !ok {
			continue
		}
		out = append(out, TimeRange{Start: start, End: start.Add(length)})
	}
	return out, nil
}
