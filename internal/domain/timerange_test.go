package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTimeRange_RejectsEmptyAndInverted(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for _, end := range []time.Time{start, start.Add(-time.Minute)} {
		if _, err := NewTimeRange(start, end); !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("NewTimeRange(%v, %v) err = %v, want ErrInvalidRange", start, end, err)
		}
	}
}

func TestNewTimeRange_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	r, err := NewTimeRange(time.Date(2026, 3, 2, 12, 0, 0, 0, loc), time.Date(2026, 3, 2, 13, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("NewTimeRange error: %v", err)
	}
	if r.Start.Location() != time.UTC || r.Start.Hour() != 10 {
		t.Fatalf("start = %v, want 10:00 UTC", r.Start)
	}
}

func TestDurationMinutes_Floors(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if got := DurationMinutes(start, start.Add(90*time.Second)); got != 1 {
		t.Fatalf("DurationMinutes = %d, want 1", got)
	}
	if got := DurationMinutes(start, start.Add(-time.Hour)); got != 0 {
		t.Fatalf("DurationMinutes(negative) = %d, want 0", got)
	}
}

func TestTimeRange_EqualIsExact(t *testing.T) {
	base := TimeRange{
		Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	}
	overlapping := TimeRange{Start: base.Start.Add(30 * time.Minute), End: base.End.Add(30 * time.Minute)}
	if base.Equal(overlapping) {
		t.Fatalf("overlapping ranges must not be equal")
	}
	if !base.Overlaps(overlapping) {
		t.Fatalf("expected overlap")
	}
	adjacent := TimeRange{Start: base.End, End: base.End.Add(time.Hour)}
	if base.Overlaps(adjacent) {
		t.Fatalf("half-open ranges sharing a bound must not overlap")
	}
}

func TestStartOfWeek_IsSunday(t *testing.T) {
	wed := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	got := StartOfWeek(wed)
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("StartOfWeek = %v, want %v", got, want)
	}
	if !StartOfWeek(want).Equal(want) {
		t.Fatalf("StartOfWeek of a Sunday must be that Sunday")
	}
	if end := EndOfWeek(wed); end.Weekday() != time.Saturday || !end.Before(want.AddDate(0, 0, 7)) {
		t.Fatalf("EndOfWeek = %v", end)
	}
}

func TestHours_RoundsToOneDecimal(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ranges := []TimeRange{
		{Start: start, End: start.Add(50 * time.Minute)},
		{Start: start.Add(2 * time.Hour), End: start.Add(2*time.Hour + 20*time.Minute)},
	}
	if got := Hours(ranges); got != 1.2 {
		t.Fatalf("Hours = %v, want 1.2", got)
	}
}
