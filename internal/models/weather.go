package models

import "time"

// Location is a named point the dashboard shows weather for.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// HourlyRecord is one instant's reading. Observation fields come straight from
// the upstream payload; provenance fields are filled in by the series merger.
type HourlyRecord struct {
	Time                     string   `json:"time"`
	Temperature              *float64 `json:"temperature_2m,omitempty"`
	Humidity                 *float64 `json:"relative_humidity_2m,omitempty"`
	WindSpeed                *float64 `json:"wind_speed_10m,omitempty"`
	Precipitation            *float64 `json:"precipitation,omitempty"`
	PrecipitationProbability *float64 `json:"precipitation_probability,omitempty"`
	WeatherCode              *int     `json:"weather_code,omitempty"`

	History        *float64 `json:"history,omitempty"`
	Forecast       *float64 `json:"forecast,omitempty"`
	Prediction     *float64 `json:"prediction,omitempty"`
	PredictionWind *float64 `json:"prediction_wind,omitempty"`
	PredictionHum  *float64 `json:"prediction_hum,omitempty"`
	UnifiedTemp    *float64 `json:"unified_temp,omitempty"`
}

// DailyRecord is one calendar day's aggregate.
type DailyRecord struct {
	Time                        string   `json:"time"`
	TemperatureMax              *float64 `json:"temperature_2m_max,omitempty"`
	TemperatureMin              *float64 `json:"temperature_2m_min,omitempty"`
	WeatherCode                 *int     `json:"weather_code,omitempty"`
	PrecipitationSum            *float64 `json:"precipitation_sum,omitempty"`
	PrecipitationProbabilityMax *float64 `json:"precipitation_probability_max,omitempty"`
	PrecipitationHours          *float64 `json:"precipitation_hours,omitempty"`
}

// PredictionRecord is one hourly slot returned by the prediction provider.
type PredictionRecord struct {
	Time                 string   `json:"time"`
	PredictedTemperature *float64 `json:"predicted_temperature_2m,omitempty"`
	PredictedWindSpeed   *float64 `json:"predicted_wind_speed_10m,omitempty"`
	PredictedHumidity    *float64 `json:"predicted_relative_humidity_2m,omitempty"`
}

// ModelPerformance is passed through to the display layer untouched.
type ModelPerformance struct {
	Status            string             `json:"status,omitempty"`
	Message           string             `json:"message,omitempty"`
	R2                *float64           `json:"r2,omitempty"`
	MAE               *float64           `json:"mae,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// WeatherPayload is the result of a history or forecast fetch.
type WeatherPayload struct {
	Hourly           []HourlyRecord `json:"hourly"`
	Daily            []DailyRecord  `json:"daily"`
	UTCOffsetSeconds int            `json:"utc_offset_seconds"`
	Timezone         string         `json:"timezone,omitempty"`
	FetchedAt        time.Time      `json:"fetched_at"`
	Stale            bool           `json:"stale,omitempty"` // served from stale cache
}

// PredictionPayload is the result of a prediction fetch.
type PredictionPayload struct {
	Prediction       []PredictionRecord `json:"prediction"`
	ModelPerformance *ModelPerformance  `json:"model_performance,omitempty"`
}

// HistoryComparison holds the temperature at the current hour on the same day in past years.
type HistoryComparison struct {
	YearAgo   *float64 `json:"year_ago"`
	DecadeAgo *float64 `json:"decade_ago"`
}

// Float returns a pointer to v. Handy for building records in tests and transforms.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
