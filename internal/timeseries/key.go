package timeseries

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparseableTimestamp is returned when a raw timestamp matches none of the accepted layouts.
var ErrUnparseableTimestamp = errors.New("unparseable timestamp")

const (
	keyLayout  = "2006-01-02T15:04"
	dateLayout = "2006-01-02"
)

// zonedLayouts carry an explicit offset; parsed values are converted to UTC.
var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

// naiveLayouts have no offset and are read as wall-clock UTC. Fractional seconds
// after a seconds field are accepted by time.Parse even when the layout omits them.
var naiveLayouts = []string{
	keyLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// TimestampKey identifies a wall-clock minute as minutes since the Unix epoch.
// Two timestamps denoting the same minute always produce the same key.
type TimestampKey int64

// KeyOf truncates t to the minute.
func KeyOf(t time.Time) TimestampKey {
	sec := t.Unix()
	if sec < 0 && sec%60 != 0 {
		return TimestampKey(sec/60 - 1)
	}
	return TimestampKey(sec / 60)
}

// Time returns the start of the minute in UTC.
func (k TimestampKey) Time() time.Time {
	return time.Unix(int64(k)*60, 0).UTC()
}

func (k TimestampKey) String() string {
	return k.Time().Format(keyLayout)
}

// ParseTime parses a raw upstream timestamp. Zoned inputs are converted to UTC,
// naive inputs are taken as UTC wall-clock time.
func ParseTime(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparseableTimestamp)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTimestamp, raw)
}

// Normalize canonicalizes a raw timestamp into its minute key.
func Normalize(raw string) (TimestampKey, error) {
	t, err := ParseTime(raw)
	if err != nil {
		return 0, err
	}
	return KeyOf(t), nil
}

// DateKey returns the calendar date portion (YYYY-MM-DD) of a raw timestamp,
// ignoring time of day. Anything after the date must itself be a timestamp
// ParseTime accepts.
func DateKey(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) < len(dateLayout) {
		return "", fmt.Errorf("%w: %q", ErrUnparseableTimestamp, raw)
	}
	d, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnparseableTimestamp, raw)
	}
	if rest := s[len(dateLayout):]; rest != "" {
		if rest[0] != 'T' && rest[0] != ' ' {
			return "", fmt.Errorf("%w: %q", ErrUnparseableTimestamp, raw)
		}
		if _, err := ParseTime(s); err != nil {
			return "", err
		}
	}
	return d.Format(dateLayout), nil
}

// CivilDate returns midnight UTC of t's own calendar date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t's calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// WallClock shifts an absolute instant into the wall-clock frame of a location
// with the given UTC offset, so it compares directly with naive upstream timestamps.
func WallClock(t time.Time, utcOffsetSeconds int) time.Time {
	return t.UTC().Add(time.Duration(utcOffsetSeconds) * time.Second)
}
