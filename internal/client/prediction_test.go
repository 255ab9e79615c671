package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestPredictionServiceClient_FetchPrediction verifies the request and that model
// performance is passed through untouched.
func TestPredictionServiceClient_FetchPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("lat") != "52.2297" || q.Get("lon") != "21.0122" || q.Get("days") != "7" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{
			"model_performance": {"status": "success", "r2": 0.91, "mae": 1.2},
			"prediction": [
				{"time": "2024-01-08T00:00:00", "predicted_temperature_2m": 1.25},
				{"time": "2024-01-08T01:00:00", "predicted_temperature_2m": 0.75, "predicted_wind_speed_10m": 9}
			]
		}`))
	}))
	defer server.Close()

	c, err := NewPredictionClient(PredictionConfig{URL: server.URL + "/api/weather/predict", Timeout: 2 * time.Second, Retry: fastRetry(1)})
	if err != nil {
		t.Fatalf("NewPredictionClient() error = %v", err)
	}
	got, err := c.FetchPrediction(context.Background(), 52.2297, 21.0122, 7)
	if err != nil {
		t.Fatalf("FetchPrediction() error = %v", err)
	}
	if len(got.Prediction) != 2 {
		t.Fatalf("len(Prediction) = %d, want 2", len(got.Prediction))
	}
	if got.Prediction[1].PredictedWindSpeed == nil || *got.Prediction[1].PredictedWindSpeed != 9 {
		t.Errorf("Prediction[1] = %+v", got.Prediction[1])
	}
	mp := got.ModelPerformance
	if mp == nil || mp.Status != "success" || mp.R2 == nil || *mp.R2 != 0.91 || mp.MAE == nil || *mp.MAE != 1.2 {
		t.Errorf("ModelPerformance = %+v", mp)
	}
}

// TestPredictionServiceClient_Errors verifies day bounds and upstream failure mapping.
func TestPredictionServiceClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"Insufficient historical data for training"}`))
	}))
	defer server.Close()

	c, err := NewPredictionClient(PredictionConfig{URL: server.URL, Retry: fastRetry(1)})
	if err != nil {
		t.Fatalf("NewPredictionClient() error = %v", err)
	}
	if _, err := c.FetchPrediction(context.Background(), 52, 21, 15); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("days=15 error = %v, want ErrInvalidRequest", err)
	}
	_, err = c.FetchPrediction(context.Background(), 52, 21, 7)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("error = %v, want ErrUpstreamFailure", err)
	}
}

// TestPredictionServiceClient_EmptyPrediction verifies a missing prediction array decodes as empty.
func TestPredictionServiceClient_EmptyPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, _ := NewPredictionClient(PredictionConfig{URL: server.URL, Retry: fastRetry(1)})
	got, err := c.FetchPrediction(context.Background(), 52, 21, 7)
	if err != nil {
		t.Fatalf("FetchPrediction() error = %v", err)
	}
	if got.Prediction == nil || len(got.Prediction) != 0 || got.ModelPerformance != nil {
		t.Errorf("FetchPrediction() = %+v", got)
	}
}

func TestNewPredictionClient_RequiresURL(t *testing.T) {
	if _, err := NewPredictionClient(PredictionConfig{}); err == nil {
		t.Error("expected error for empty URL")
	}
}
