package timeseries

import (
	"sort"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// Series is the unified hourly series: ordered by time, one record per TimestampKey.
type Series []models.HourlyRecord

// MergeHourly combines history, forecast and prediction records into one series.
// History sets history and unified_temp; forecast adds forecast and only fills
// unified_temp where no historical reading exists; prediction fields attach to
// the matching slot, creating it if absent. Records with unparseable timestamps
// are skipped and listed in the report.
func MergeHourly(history, forecast []models.HourlyRecord, prediction []models.PredictionRecord) (Series, Report) {
	var report Report
	entries := make(map[TimestampKey]*models.HourlyRecord, len(history)+len(forecast))

	for i, h := range history {
		key, err := Normalize(h.Time)
		if err != nil {
			report.skip(SourceHistory, i, h.Time, err)
			continue
		}
		rec := observation(h)
		rec.History = cloneFloat(h.Temperature)
		rec.UnifiedTemp = cloneFloat(h.Temperature)
		entries[key] = &rec
	}

	for i, f := range forecast {
		key, err := Normalize(f.Time)
		if err != nil {
			report.skip(SourceForecast, i, f.Time, err)
			continue
		}
		if existing, ok := entries[key]; ok {
			existing.Forecast = cloneFloat(f.Temperature)
			if existing.History == nil {
				existing.UnifiedTemp = cloneFloat(f.Temperature)
			}
			continue
		}
		rec := observation(f)
		rec.Forecast = cloneFloat(f.Temperature)
		rec.UnifiedTemp = cloneFloat(f.Temperature)
		entries[key] = &rec
	}

	for i, p := range prediction {
		key, err := Normalize(p.Time)
		if err != nil {
			report.skip(SourcePrediction, i, p.Time, err)
			continue
		}
		rec, ok := entries[key]
		if !ok {
			rec = &models.HourlyRecord{Time: p.Time}
			entries[key] = rec
		}
		applyPrediction(rec, p)
	}

	return emitSorted(entries), report
}

// Keys returns the normalized key of every record whose timestamp parses.
func (s Series) Keys() []TimestampKey {
	keys := make([]TimestampKey, 0, len(s))
	for _, rec := range s {
		if key, err := Normalize(rec.Time); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}

func emitSorted(entries map[TimestampKey]*models.HourlyRecord) Series {
	keys := make([]TimestampKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make(Series, 0, len(keys))
	for _, k := range keys {
		out = append(out, *entries[k])
	}
	return out
}

// observation copies the upstream reading fields of r, dropping any provenance fields.
func observation(r models.HourlyRecord) models.HourlyRecord {
	return models.HourlyRecord{
		Time:                     r.Time,
		Temperature:              cloneFloat(r.Temperature),
		Humidity:                 cloneFloat(r.Humidity),
		WindSpeed:                cloneFloat(r.WindSpeed),
		Precipitation:            cloneFloat(r.Precipitation),
		PrecipitationProbability: cloneFloat(r.PrecipitationProbability),
		WeatherCode:              cloneInt(r.WeatherCode),
	}
}

func applyPrediction(rec *models.HourlyRecord, p models.PredictionRecord) {
	rec.Prediction = cloneFloat(p.PredictedTemperature)
	rec.PredictionWind = cloneFloat(p.PredictedWindSpeed)
	rec.PredictionHum = cloneFloat(p.PredictedHumidity)
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
