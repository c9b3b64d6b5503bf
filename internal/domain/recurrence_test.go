package domain

import (
	"testing"
	"time"
)

func TestExpandSeries_Validation(t *testing.T) {
	first := TimeRange{
		Start: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		series   SlotSeries
		wantKind Kind
	}{
		{
			name:     "no recurrence",
			series:   SlotSeries{First: first, Recurrence: RecurrenceNone, Until: first.Start.AddDate(0, 0, 7)},
			wantKind: KindInvalidArgument,
		},
		{
			name:     "missing end date",
			series:   SlotSeries{First: first, Recurrence: RecurrenceDaily},
			wantKind: KindInvalidArgument,
		},
		{
			name:     "end date before first slot",
			series:   SlotSeries{First: first, Recurrence: RecurrenceDaily, Until: first.Start.AddDate(0, 0, -1)},
			wantKind: KindInvalidArgument,
		},
		{
			name: "inverted range",
			series: SlotSeries{
				First:      TimeRange{Start: first.End, End: first.Start},
				Recurrence: RecurrenceDaily,
				Until:      first.Start.AddDate(0, 0, 7),
			},
			wantKind: KindInvalidRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandSeries(tt.series)
			if err == nil {
				t.Fatalf("expected error")
			}
			if KindOf(err) != tt.wantKind {
				t.Fatalf("kind = %q, want %q (err=%v)", KindOf(err), tt.wantKind, err)
			}
		})
	}
}

func TestExpandSeries_Counts(t *testing.T) {
	first := TimeRange{
		Start: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 5, 9, 30, 0, 0, time.UTC),
	}

	tests := []struct {
		name       string
		recurrence Recurrence
		until      time.Time
		want       int
	}{
		{name: "daily until is inclusive", recurrence: RecurrenceDaily, until: time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), want: 7},
		{name: "weekly", recurrence: RecurrenceWeekly, until: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC), want: 5},
		{name: "monthly", recurrence: RecurrenceMonthly, until: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), want: 6},
		{name: "daily capped at span", recurrence: RecurrenceDaily, until: time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), want: 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandSeries(SlotSeries{First: first, Recurrence: tt.recurrence, Until: tt.until})
			if err != nil {
				t.Fatalf("ExpandSeries error: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			for i, r := range got {
				if r.Minutes() != 30 {
					t.Fatalf("occurrence %d lasts %d minutes, want 30", i, r.Minutes())
				}
				if r.Start.Hour() != 9 {
					t.Fatalf("occurrence %d starts at hour %d, want 9", i, r.Start.Hour())
				}
				if i > 0 && !got[i-1].Start.Before(r.Start) {
					t.Fatalf("occurrences not ordered: %v then %v", got[i-1].Start, r.Start)
				}
			}
		})
	}
}

func TestExpandSeries_MonthlySkipsShortMonths(t *testing.T) {
	first := TimeRange{
		Start: time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC),
	}
	got, err := ExpandSeries(SlotSeries{First: first, Recurrence: RecurrenceMonthly, Until: time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("ExpandSeries error: %v", err)
	}
	// January, March, May.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %v", len(got), got)
	}
	for _, r := range got {
		if r.Start.Day() != 31 {
			t.Fatalf("occurrence on day %d, want 31", r.Start.Day())
		}
	}
}

func TestExpandSeries_CappedAtMaxOccurrences(t *testing.T) {
	first := TimeRange{
		Start: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC),
	}
	got, err := ExpandSeries(SlotSeries{First: first, Recurrence: RecurrenceDaily, Until: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("ExpandSeries error: %v", err)
	}
	if len(got) > MaxSeriesOccurrences {
		t.Fatalf("len = %d exceeds %d", len(got), MaxSeriesOccurrences)
	}
	last := got[len(got)-1]
	if !last.Start.Before(first.Start.Add(MaxSeriesSpan)) {
		t.Fatalf("last occurrence %v is past the span cap", last.Start)
	}
}
