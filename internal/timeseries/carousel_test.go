package timeseries

import (
	"testing"
	"time"

	"github.com/kjstillabower/nostradamus/internal/models"
)

func dailyRange(start time.Time, n int) DailySeries {
	out := make(DailySeries, n)
	for i := range out {
		out[i] = models.DailyRecord{Time: FormatDate(start.AddDate(0, 0, i)), TemperatureMax: models.Float(float64(i))}
	}
	return out
}

func dates(window []models.DailyRecord) []string {
	out := make([]string, len(window))
	for i, d := range window {
		out[i] = d.Time
	}
	return out
}

// TestWindowAround_CenteredOnToday verifies the worked example: a 14-day series with
// today at index 7 yields indices 4 through 10.
func TestWindowAround_CenteredOnToday(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := dailyRange(start, 14)
	today := time.Date(2024, 1, 8, 15, 30, 0, 0, time.UTC)

	got, fallback := WindowAroundWithFallback(series, today, 0)

	if fallback {
		t.Error("fallback = true, want false")
	}
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	if got[0].Time != series[4].Time || got[6].Time != series[10].Time {
		t.Errorf("window = %v, want %s..%s", dates(got), series[4].Time, series[10].Time)
	}
	if got[3].Time != "2024-01-08" {
		t.Errorf("center = %s, want 2024-01-08", got[3].Time)
	}
}

// TestWindowAround_Offsets verifies paging by whole weeks and clipping at the series edges.
func TestWindowAround_Offsets(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := dailyRange(start, 21)
	today := time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		offset    int
		wantFirst string
		wantLen   int
	}{
		{name: "this week", offset: 0, wantFirst: "2024-01-08", wantLen: 7},
		{name: "next week", offset: 1, wantFirst: "2024-01-15", wantLen: 7},
		{name: "previous week", offset: -1, wantFirst: "2024-01-01", wantLen: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, fallback := WindowAroundWithFallback(series, today, tt.offset)
			if fallback {
				t.Fatal("fallback = true, want false")
			}
			if len(got) != tt.wantLen || got[0].Time != tt.wantFirst {
				t.Errorf("window = %v, want %d days from %s", dates(got), tt.wantLen, tt.wantFirst)
			}
		})
	}
}

// TestWindowAround_ClippedAtEnd verifies clipping when the center sits near the last record.
func TestWindowAround_ClippedAtEnd(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := dailyRange(start, 10)
	today := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	got := WindowAround(series, today, 0)

	if len(got) != 5 || got[0].Time != "2024-01-06" || got[4].Time != "2024-01-10" {
		t.Errorf("window = %v", dates(got))
	}
}

// TestWindowAround_FallbackToFirstSeven verifies that a missing center date yields the
// first seven records and reports the fallback.
func TestWindowAround_FallbackToFirstSeven(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := dailyRange(start, 14)
	today := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got, fallback := WindowAroundWithFallback(series, today, 0)

	if !fallback {
		t.Error("fallback = false, want true")
	}
	if len(got) != 7 || got[0].Time != "2024-01-01" || got[6].Time != "2024-01-07" {
		t.Errorf("window = %v", dates(got))
	}
}

// TestWindowAround_ShortSeries verifies the fallback on a series shorter than the window.
func TestWindowAround_ShortSeries(t *testing.T) {
	series := dailyRange(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 3)

	got, fallback := WindowAroundWithFallback(series, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), 0)

	if !fallback || len(got) != 3 {
		t.Errorf("window = %v fallback = %v", dates(got), fallback)
	}
}

// TestWindowAround_Empty verifies that an empty series yields an empty window.
func TestWindowAround_Empty(t *testing.T) {
	got, fallback := WindowAroundWithFallback(nil, time.Now(), 0)
	if len(got) != 0 || fallback {
		t.Errorf("window = %v fallback = %v", got, fallback)
	}
}

// TestWindowAround_ContiguousSubsequence verifies the window is always a run of the input.
func TestWindowAround_ContiguousSubsequence(t *testing.T) {
	series := dailyRange(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 30)
	today := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for offset := -4; offset <= 4; offset++ {
		got := WindowAround(series, today, offset)
		if len(got) == 0 || len(got) > WindowSize {
			t.Fatalf("offset %d: len = %d", offset, len(got))
		}
		first := -1
		for i, d := range series {
			if d.Time == got[0].Time {
				first = i
			}
		}
		for j, d := range got {
			if series[first+j].Time != d.Time {
				t.Fatalf("offset %d: window %v not contiguous", offset, dates(got))
			}
		}
	}
}

// TestWindowAround_DoesNotAlias verifies that the window is a copy.
func TestWindowAround_DoesNotAlias(t *testing.T) {
	series := dailyRange(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 7)
	got := WindowAround(series, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), 0)
	got[0].Time = "changed"
	if series[0].Time != "2024-01-01" {
		t.Errorf("series mutated: %q", series[0].Time)
	}
}
