package client

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/nostradamus/internal/circuitbreaker"
	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/validation"
)

const (
	DefaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	MaxForecastDays = 16
)

var (
	hourlyVariables         = []string{"temperature_2m", "relative_humidity_2m", "wind_speed_10m", "precipitation", "weather_code"}
	forecastHourlyVariables = append(append([]string(nil), hourlyVariables...), "precipitation_probability")
	archiveDailyVariables   = []string{"temperature_2m_max", "temperature_2m_min", "weather_code", "precipitation_sum", "precipitation_hours"}
	forecastDailyVariables  = []string{"temperature_2m_max", "temperature_2m_min", "weather_code", "precipitation_sum", "precipitation_probability_max"}
)

// OpenMeteoConfig configures OpenMeteoClient. Zero URLs use the public endpoints.
type OpenMeteoConfig struct {
	ArchiveURL  string
	ForecastURL string
	Timeout     time.Duration
	Retry       RetryConfig
	Breaker     *circuitbreaker.CircuitBreaker
	HTTPClient  *http.Client
}

// OpenMeteoClient reads the Open-Meteo archive and forecast APIs. No API key is needed.
type OpenMeteoClient struct {
	archiveURL  string
	forecastURL string
	transport
}

func NewOpenMeteoClient(cfg OpenMeteoConfig) (*OpenMeteoClient, error) {
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = DefaultArchiveURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = DefaultForecastURL
	}
	if err := validateBaseURL("archive", cfg.ArchiveURL); err != nil {
		return nil, err
	}
	if err := validateBaseURL("forecast", cfg.ForecastURL); err != nil {
		return nil, err
	}
	return &OpenMeteoClient{
		archiveURL:  cfg.ArchiveURL,
		forecastURL: cfg.ForecastURL,
		transport:   newTransport(cfg.HTTPClient, cfg.Timeout, cfg.Retry, cfg.Breaker),
	}, nil
}

// openMeteoResponse is the columnar payload: one array per variable, aligned with time.
type openMeteoResponse struct {
	UTCOffsetSeconds int           `json:"utc_offset_seconds"`
	Timezone         string        `json:"timezone"`
	Hourly           hourlyColumns `json:"hourly"`
	Daily            dailyColumns  `json:"daily"`
}

type hourlyColumns struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	Humidity                 []*float64 `json:"relative_humidity_2m"`
	WindSpeed                []*float64 `json:"wind_speed_10m"`
	Precipitation            []*float64 `json:"precipitation"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	WeatherCode              []*float64 `json:"weather_code"`
}

type dailyColumns struct {
	Time                        []string   `json:"time"`
	TemperatureMax              []*float64 `json:"temperature_2m_max"`
	TemperatureMin              []*float64 `json:"temperature_2m_min"`
	WeatherCode                 []*float64 `json:"weather_code"`
	PrecipitationSum            []*float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
	PrecipitationHours          []*float64 `json:"precipitation_hours"`
}

// FetchHistory returns observed hourly and daily data for [startDate, endDate] (YYYY-MM-DD).
func (c *OpenMeteoClient) FetchHistory(ctx context.Context, lat, lon float64, startDate, endDate string) (models.WeatherPayload, error) {
	q := validation.HistoryQuery{Coordinates: validation.Coordinates{Lat: lat, Lon: lon}, StartDate: startDate, EndDate: endDate}
	if err := validation.Struct(q); err != nil {
		return models.WeatherPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if endDate < startDate {
		return models.WeatherPayload{}, fmt.Errorf("%w: end_date %s before start_date %s", ErrInvalidRequest, endDate, startDate)
	}

	params := coordinateParams(lat, lon)
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	params.Set("hourly", strings.Join(hourlyVariables, ","))
	params.Set("daily", strings.Join(archiveDailyVariables, ","))
	return c.fetch(ctx, SourceHistory, c.archiveURL, params)
}

// FetchForecast returns forecast hourly and daily data for the next days (1..16) days.
func (c *OpenMeteoClient) FetchForecast(ctx context.Context, lat, lon float64, days int) (models.WeatherPayload, error) {
	q := validation.ForecastQuery{Coordinates: validation.Coordinates{Lat: lat, Lon: lon}, Days: days}
	if err := validation.Struct(q); err != nil {
		return models.WeatherPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	params := coordinateParams(lat, lon)
	params.Set("forecast_days", strconv.Itoa(days))
	params.Set("hourly", strings.Join(forecastHourlyVariables, ","))
	params.Set("daily", strings.Join(forecastDailyVariables, ","))
	return c.fetch(ctx, SourceForecast, c.forecastURL, params)
}

func (c *OpenMeteoClient) fetch(ctx context.Context, source, base string, params url.Values) (models.WeatherPayload, error) {
	rawURL, err := buildURL(base, params)
	if err != nil {
		return models.WeatherPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	var resp openMeteoResponse
	if err := c.getJSON(ctx, source, rawURL, &resp); err != nil {
		return models.WeatherPayload{}, fmt.Errorf("fetch %s: %w", source, err)
	}
	return models.WeatherPayload{
		Hourly:           resp.Hourly.records(),
		Daily:            resp.Daily.records(),
		UTCOffsetSeconds: resp.UTCOffsetSeconds,
		Timezone:         resp.Timezone,
		FetchedAt:        time.Now().UTC(),
	}, nil
}

func coordinateParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("timezone", "auto")
	return params
}

func (h hourlyColumns) records() []models.HourlyRecord {
	out := make([]models.HourlyRecord, len(h.Time))
	for i, ts := range h.Time {
		out[i] = models.HourlyRecord{
			Time:                     ts,
			Temperature:              column(h.Temperature, i),
			Humidity:                 column(h.Humidity, i),
			WindSpeed:                column(h.WindSpeed, i),
			Precipitation:            column(h.Precipitation, i),
			PrecipitationProbability: column(h.PrecipitationProbability, i),
			WeatherCode:              intColumn(h.WeatherCode, i),
		}
	}
	return out
}

func (d dailyColumns) records() []models.DailyRecord {
	out := make([]models.DailyRecord, len(d.Time))
	for i, ts := range d.Time {
		out[i] = models.DailyRecord{
			Time:                        ts,
			TemperatureMax:              column(d.TemperatureMax, i),
			TemperatureMin:              column(d.TemperatureMin, i),
			WeatherCode:                 intColumn(d.WeatherCode, i),
			PrecipitationSum:            column(d.PrecipitationSum, i),
			PrecipitationProbabilityMax: column(d.PrecipitationProbabilityMax, i),
			PrecipitationHours:          column(d.PrecipitationHours, i),
		}
	}
	return out
}

// column returns values[i], or nil when the variable is missing or shorter than time.
func column(values []*float64, i int) *float64 {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}

func intColumn(values []*float64, i int) *int {
	v := column(values, i)
	if v == nil {
		return nil
	}
	return models.Int(int(math.Round(*v)))
}
