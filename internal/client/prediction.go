package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/nostradamus/internal/circuitbreaker"
	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/validation"
)

const MaxPredictionDays = 14

// PredictionConfig configures PredictionServiceClient.
type PredictionConfig struct {
	URL        string
	Timeout    time.Duration
	Retry      RetryConfig
	Breaker    *circuitbreaker.CircuitBreaker
	HTTPClient *http.Client
}

// PredictionServiceClient calls the model service, which trains on recent history
// and returns hourly predictions plus model performance.
type PredictionServiceClient struct {
	url string
	transport
}

func NewPredictionClient(cfg PredictionConfig) (*PredictionServiceClient, error) {
	if err := validateBaseURL("prediction", cfg.URL); err != nil {
		return nil, err
	}
	// Training on two years of history is slow.
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &PredictionServiceClient{
		url:       cfg.URL,
		transport: newTransport(cfg.HTTPClient, cfg.Timeout, cfg.Retry, cfg.Breaker),
	}, nil
}

// FetchPrediction returns the predicted series for the next days (1..14) days.
func (c *PredictionServiceClient) FetchPrediction(ctx context.Context, lat, lon float64, days int) (models.PredictionPayload, error) {
	q := validation.PredictionQuery{Coordinates: validation.Coordinates{Lat: lat, Lon: lon}, Days: days}
	if err := validation.Struct(q); err != nil {
		return models.PredictionPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("days", strconv.Itoa(days))
	rawURL, err := buildURL(c.url, params)
	if err != nil {
		return models.PredictionPayload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var payload models.PredictionPayload
	if err := c.getJSON(ctx, SourcePrediction, rawURL, &payload); err != nil {
		return models.PredictionPayload{}, fmt.Errorf("fetch %s: %w", SourcePrediction, err)
	}
	if payload.Prediction == nil {
		payload.Prediction = []models.PredictionRecord{}
	}
	return payload, nil
}
