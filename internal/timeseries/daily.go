package timeseries

import (
	"sort"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// DailySeries is ordered by date with at most one record per calendar day.
type DailySeries []models.DailyRecord

// MergeDaily concatenates history then forecast, groups by calendar date and
// merges duplicates field by field: a present field in a later record overwrites
// the earlier value, an absent one leaves it alone.
func MergeDaily(historyDaily, forecastDaily []models.DailyRecord) (DailySeries, Report) {
	var report Report
	byDate := make(map[string]*models.DailyRecord, len(historyDaily)+len(forecastDaily))

	add := func(src Source, records []models.DailyRecord) {
		for i, d := range records {
			date, err := DateKey(d.Time)
			if err != nil {
				report.skip(src, i, d.Time, err)
				continue
			}
			if existing, ok := byDate[date]; ok {
				overlayDaily(existing, d)
				continue
			}
			rec := models.DailyRecord{Time: d.Time}
			overlayDaily(&rec, d)
			byDate[date] = &rec
		}
	}
	add(SourceHistory, historyDaily)
	add(SourceForecast, forecastDaily)

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make(DailySeries, 0, len(dates))
	for _, d := range dates {
		out = append(out, *byDate[d])
	}
	return out, report
}

// Find returns the record for the given YYYY-MM-DD date.
func (s DailySeries) Find(date string) (models.DailyRecord, bool) {
	for _, d := range s {
		if key, err := DateKey(d.Time); err == nil && key == date {
			return d, true
		}
	}
	return models.DailyRecord{}, false
}

func overlayDaily(dst *models.DailyRecord, src models.DailyRecord) {
	if src.Time != "" {
		dst.Time = src.Time
	}
	if src.TemperatureMax != nil {
		dst.TemperatureMax = cloneFloat(src.TemperatureMax)
	}
	if src.TemperatureMin != nil {
		dst.TemperatureMin = cloneFloat(src.TemperatureMin)
	}
	if src.WeatherCode != nil {
		dst.WeatherCode = cloneInt(src.WeatherCode)
	}
	if src.PrecipitationSum != nil {
		dst.PrecipitationSum = cloneFloat(src.PrecipitationSum)
	}
	if src.PrecipitationProbabilityMax != nil {
		dst.PrecipitationProbabilityMax = cloneFloat(src.PrecipitationProbabilityMax)
	}
	if src.PrecipitationHours != nil {
		dst.PrecipitationHours = cloneFloat(src.PrecipitationHours)
	}
}
