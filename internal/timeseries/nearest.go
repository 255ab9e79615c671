package timeseries

import (
	"time"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// NearestTo returns the record whose time is closest to reference. Ties keep the
// earliest record in series order. ok is false for an empty series.
func NearestTo(series Series, reference time.Time) (rec models.HourlyRecord, ok bool) {
	best := -1
	var bestDiff time.Duration
	for i, r := range series {
		t, err := ParseTime(r.Time)
		if err != nil {
			continue
		}
		diff := absDuration(t.Sub(reference))
		if best < 0 || diff < bestDiff {
			best = i
			bestDiff = diff
		}
	}
	if best < 0 {
		return models.HourlyRecord{}, false
	}
	return series[best], true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
