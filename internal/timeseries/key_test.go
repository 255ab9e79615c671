package timeseries

import (
	"errors"
	"testing"
	"time"
)

// TestNormalize_SameMinuteCollides verifies that timestamps denoting the same
// wall-clock minute normalize to an equal key regardless of serialized precision.
func TestNormalize_SameMinuteCollides(t *testing.T) {
	inputs := []string{
		"2024-01-01T10:00",
		"2024-01-01T10:00:00",
		"2024-01-01T10:00:59",
		"2024-01-01T10:00:00.000",
		"2024-01-01T10:00:30.123456",
		"2024-01-01 10:00",
		"2024-01-01 10:00:00",
		"2024-01-01T10:00:00Z",
		"2024-01-01T10:00Z",
		"2024-01-01T11:00:00+01:00",
		" 2024-01-01T10:00 ",
	}
	want, err := Normalize(inputs[0])
	if err != nil {
		t.Fatalf("Normalize(%q) error = %v", inputs[0], err)
	}
	for _, in := range inputs {
		got, err := Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q) error = %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %s, want %s", in, got, want)
		}
	}
}

// TestNormalize_DistinctMinutes verifies that different minutes never share a key.
func TestNormalize_DistinctMinutes(t *testing.T) {
	a, _ := Normalize("2024-01-01T10:00")
	b, _ := Normalize("2024-01-01T10:01")
	c, _ := Normalize("2024-01-01T09:59:59")
	if a == b || a == c || b == c {
		t.Fatalf("keys collide: %s %s %s", a, b, c)
	}
	if !(c < a && a < b) {
		t.Errorf("keys not ordered: %d %d %d", c, a, b)
	}
}

// TestNormalize_Malformed verifies that malformed input returns ErrUnparseableTimestamp instead of panicking.
func TestNormalize_Malformed(t *testing.T) {
	for _, in := range []string{"", "   ", "yesterday", "2024-13-01T10:00", "2024-01-01", "10:00", "2024-01-01T25:00"} {
		if _, err := Normalize(in); !errors.Is(err, ErrUnparseableTimestamp) {
			t.Errorf("Normalize(%q) error = %v, want ErrUnparseableTimestamp", in, err)
		}
	}
}

// TestTimestampKey_StringAndTime verifies round-tripping a key to its canonical form.
func TestTimestampKey_StringAndTime(t *testing.T) {
	key, err := Normalize("2024-03-05T07:42:31")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got := key.String(); got != "2024-03-05T07:42" {
		t.Errorf("String() = %q, want %q", got, "2024-03-05T07:42")
	}
	if got := key.Time(); !got.Equal(time.Date(2024, 3, 5, 7, 42, 0, 0, time.UTC)) {
		t.Errorf("Time() = %v", got)
	}
}

// TestKeyOf_BeforeEpoch verifies that truncation floors pre-1970 instants to their own minute.
func TestKeyOf_BeforeEpoch(t *testing.T) {
	ts := time.Date(1969, 12, 31, 23, 59, 30, 0, time.UTC)
	if got := KeyOf(ts).Time(); !got.Equal(time.Date(1969, 12, 31, 23, 59, 0, 0, time.UTC)) {
		t.Errorf("KeyOf(%v).Time() = %v", ts, got)
	}
}

// TestDateKey verifies that the date portion is extracted and time of day ignored.
func TestDateKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "2024-01-01", want: "2024-01-01"},
		{in: "2024-01-01T00:00", want: "2024-01-01"},
		{in: "2024-01-01T23:59:59Z", want: "2024-01-01"},
		{in: "2024-1-1", wantErr: true},
		{in: "2024-01-01 06:00", want: "2024-01-01"},
		{in: "garbage-in", wantErr: true},
		{in: "2024-01-01garbage", wantErr: true},
		{in: "2024-01-01T25:00", wantErr: true},
		{in: "2024-01-01 noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := DateKey(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("DateKey(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("DateKey(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
}

// TestWallClock verifies shifting an instant into a location's wall-clock frame.
func TestWallClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC)
	got := WallClock(now, 2*3600)
	want := time.Date(2024, 6, 2, 0, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("WallClock() = %v, want %v", got, want)
	}
}
