package timeseries

import (
	"time"

	"github.com/kjstillabower/nostradamus/internal/models"
)

const (
	// WindowSize is the number of days the carousel shows.
	WindowSize   = 7
	windowRadius = WindowSize / 2
	daysPerPage  = 7
)

// WindowAround returns up to seven days centered on today + weekOffset weeks.
// See WindowAroundWithFallback.
func WindowAround(series DailySeries, today time.Time, weekOffset int) []models.DailyRecord {
	window, _ := WindowAroundWithFallback(series, today, weekOffset)
	return window
}

// WindowAroundWithFallback locates the record dated exactly today + weekOffset*7
// days and returns indices [center-3, center+3] clipped to the series. When no
// record carries the center date it returns the first seven records and
// fallback is true. The returned slice never aliases series.
func WindowAroundWithFallback(series DailySeries, today time.Time, weekOffset int) (window []models.DailyRecord, fallback bool) {
	if len(series) == 0 {
		return []models.DailyRecord{}, false
	}
	center := FormatDate(CivilDate(today).AddDate(0, 0, weekOffset*daysPerPage))

	idx := -1
	for i, d := range series {
		if key, err := DateKey(d.Time); err == nil && key == center {
			idx = i
			break
		}
	}
	if idx < 0 {
		n := min(WindowSize, len(series))
		return append([]models.DailyRecord(nil), series[:n]...), true
	}

	start := max(idx-windowRadius, 0)
	end := min(idx+windowRadius+1, len(series))
	return append([]models.DailyRecord(nil), series[start:end]...), false
}
