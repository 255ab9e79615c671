package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const archiveBody = `{
	"latitude": 52.25, "longitude": 21.0,
	"utc_offset_seconds": 3600, "timezone": "Europe/Warsaw",
	"hourly": {
		"time": ["2024-01-01T00:00", "2024-01-01T01:00"],
		"temperature_2m": [1.5, null],
		"relative_humidity_2m": [80, 82],
		"wind_speed_10m": [10.2, 11],
		"precipitation": [0, 0.3],
		"weather_code": [3, 61]
	},
	"daily": {
		"time": ["2024-01-01"],
		"temperature_2m_max": [4.1],
		"temperature_2m_min": [-0.7],
		"weather_code": [61],
		"precipitation_sum": [2.4],
		"precipitation_hours": [5]
	}
}`

func newTestOpenMeteo(t *testing.T, handler http.HandlerFunc) *OpenMeteoClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewOpenMeteoClient(OpenMeteoConfig{
		ArchiveURL:  server.URL + "/v1/archive",
		ForecastURL: server.URL + "/v1/forecast",
		Timeout:     2 * time.Second,
		Retry:       fastRetry(1),
	})
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	return c
}

// TestOpenMeteoClient_FetchHistory verifies the archive query and the columnar to record transform.
func TestOpenMeteoClient_FetchHistory(t *testing.T) {
	c := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/archive" {
			t.Errorf("path = %s, want /v1/archive", r.URL.Path)
		}
		q := r.URL.Query()
		for key, want := range map[string]string{
			"latitude":   "52.2297",
			"longitude":  "21.0122",
			"start_date": "2024-01-01",
			"end_date":   "2024-01-07",
			"timezone":   "auto",
			"hourly":     "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation,weather_code",
			"daily":      "temperature_2m_max,temperature_2m_min,weather_code,precipitation_sum,precipitation_hours",
		} {
			if got := q.Get(key); got != want {
				t.Errorf("query %s = %q, want %q", key, got, want)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(archiveBody))
	})

	got, err := c.FetchHistory(context.Background(), 52.2297, 21.0122, "2024-01-01", "2024-01-07")
	if err != nil {
		t.Fatalf("FetchHistory() error = %v", err)
	}

	if got.UTCOffsetSeconds != 3600 || got.Timezone != "Europe/Warsaw" {
		t.Errorf("offset/timezone = %d/%q", got.UTCOffsetSeconds, got.Timezone)
	}
	if len(got.Hourly) != 2 {
		t.Fatalf("len(Hourly) = %d, want 2", len(got.Hourly))
	}
	first, second := got.Hourly[0], got.Hourly[1]
	if first.Time != "2024-01-01T00:00" || first.Temperature == nil || *first.Temperature != 1.5 {
		t.Errorf("Hourly[0] = %+v", first)
	}
	if first.WeatherCode == nil || *first.WeatherCode != 3 {
		t.Errorf("Hourly[0].WeatherCode = %v, want 3", first.WeatherCode)
	}
	if second.Temperature != nil {
		t.Errorf("Hourly[1].Temperature = %v, want nil for JSON null", *second.Temperature)
	}
	if second.PrecipitationProbability != nil {
		t.Errorf("Hourly[1].PrecipitationProbability should be absent for archive data")
	}
	if len(got.Daily) != 1 || got.Daily[0].PrecipitationHours == nil || *got.Daily[0].PrecipitationHours != 5 {
		t.Errorf("Daily = %+v", got.Daily)
	}
	if got.FetchedAt.IsZero() {
		t.Error("FetchedAt not set")
	}
}

// TestOpenMeteoClient_FetchForecast verifies the forecast query parameters.
func TestOpenMeteoClient_FetchForecast(t *testing.T) {
	c := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			t.Errorf("path = %s, want /v1/forecast", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("forecast_days") != "7" {
			t.Errorf("forecast_days = %q, want 7", q.Get("forecast_days"))
		}
		if q.Get("daily") != "temperature_2m_max,temperature_2m_min,weather_code,precipitation_sum,precipitation_probability_max" {
			t.Errorf("daily = %q", q.Get("daily"))
		}
		_, _ = w.Write([]byte(`{"utc_offset_seconds":0,"hourly":{"time":["2024-01-08T00:00"],"temperature_2m":[2],"precipitation_probability":[40]},"daily":{"time":["2024-01-08"],"precipitation_probability_max":[70]}}`))
	})

	got, err := c.FetchForecast(context.Background(), 52.2297, 21.0122, 7)
	if err != nil {
		t.Fatalf("FetchForecast() error = %v", err)
	}
	if len(got.Hourly) != 1 || got.Hourly[0].PrecipitationProbability == nil || *got.Hourly[0].PrecipitationProbability != 40 {
		t.Errorf("Hourly = %+v", got.Hourly)
	}
	if got.Hourly[0].Humidity != nil {
		t.Error("missing column should produce nil field")
	}
	if len(got.Daily) != 1 || got.Daily[0].TemperatureMax != nil {
		t.Errorf("Daily = %+v", got.Daily)
	}
}

// TestOpenMeteoClient_InvalidInput verifies that bad arguments fail before any request is sent.
func TestOpenMeteoClient_InvalidInput(t *testing.T) {
	c := newTestOpenMeteo(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL)
	})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"forecast zero days", func() error { _, err := c.FetchForecast(ctx, 52, 21, 0); return err }},
		{"forecast 17 days", func() error { _, err := c.FetchForecast(ctx, 52, 21, 17); return err }},
		{"latitude out of range", func() error { _, err := c.FetchForecast(ctx, 95, 21, 7); return err }},
		{"history bad date", func() error { _, err := c.FetchHistory(ctx, 52, 21, "01/01/2024", "2024-01-07"); return err }},
		{"history reversed range", func() error { _, err := c.FetchHistory(ctx, 52, 21, "2024-01-07", "2024-01-01"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestNewOpenMeteoClient_URLs(t *testing.T) {
	if _, err := NewOpenMeteoClient(OpenMeteoConfig{}); err != nil {
		t.Errorf("default URLs error = %v", err)
	}
	if _, err := NewOpenMeteoClient(OpenMeteoConfig{ArchiveURL: "not a url"}); err == nil {
		t.Error("expected error for invalid archive URL")
	}
}

// TestColumn_ShortArrays verifies that a variable array shorter than time yields nil, not a panic.
func TestColumn_ShortArrays(t *testing.T) {
	h := hourlyColumns{Time: []string{"a", "b"}, Temperature: []*float64{ptrFloat(1)}}
	recs := h.records()
	if recs[1].Temperature != nil {
		t.Errorf("records()[1].Temperature = %v, want nil", *recs[1].Temperature)
	}
}

func ptrFloat(v float64) *float64 { return &v }
