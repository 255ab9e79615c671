package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/nostradamus/internal/circuitbreaker"
	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
)

// WeatherClient fetches observed and forecast weather for a coordinate.
type WeatherClient interface {
	FetchHistory(ctx context.Context, lat, lon float64, startDate, endDate string) (models.WeatherPayload, error)
	FetchForecast(ctx context.Context, lat, lon float64, days int) (models.WeatherPayload, error)
}

// PredictionClient fetches model-generated predictions for a coordinate.
type PredictionClient interface {
	FetchPrediction(ctx context.Context, lat, lon float64, days int) (models.PredictionPayload, error)
}

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrRateLimited     = errors.New("rate limited")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrCircuitOpen     = errors.New("circuit open")

	errMalformedPayload = errors.New("malformed payload")
)

// Upstream source labels used in metrics and logs.
const (
	SourceHistory    = "history"
	SourceForecast   = "forecast"
	SourcePrediction = "prediction"
)

// RetryConfig controls retries of transient upstream failures.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is three attempts with 100ms base and 2s cap.
func DefaultRetry() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// IsBreakerFailure reports whether err says something about upstream health.
// Bad requests and caller cancellation do not.
func IsBreakerFailure(err error) bool {
	return !errors.Is(err, ErrInvalidRequest) && !errors.Is(err, context.Canceled)
}

// transport is the JSON-over-HTTP plumbing shared by the upstream clients.
type transport struct {
	client  *http.Client
	timeout time.Duration
	retry   RetryConfig
	breaker *circuitbreaker.CircuitBreaker
}

func newTransport(httpClient *http.Client, timeout time.Duration, retry RetryConfig, breaker *circuitbreaker.CircuitBreaker) transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return transport{client: httpClient, timeout: timeout, retry: retry, breaker: breaker}
}

// getJSON performs GET rawURL and decodes the body into out, retrying transient failures.
func (t transport) getJSON(ctx context.Context, source, rawURL string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < t.retry.Attempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(source).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.calculateBackoff(attempt)):
			}
		}

		err := t.callOnce(ctx, source, rawURL, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (t transport) callOnce(ctx context.Context, source, rawURL string, out interface{}) error {
	if t.breaker == nil {
		return t.callAPI(ctx, source, rawURL, out)
	}
	err := t.breaker.Call(ctx, func() error { return t.callAPI(ctx, source, rawURL, out) })
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.UpstreamCallsTotal.WithLabelValues(source, "circuit_open").Inc()
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (t transport) callAPI(ctx context.Context, source, rawURL string, out interface{}) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		observe(source, "error", start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("request aborted: %w", ctxErr)
		}
		return fmt.Errorf("%w: http request failed: %w", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	observe(source, statusLabel(resp.StatusCode), start)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w: parse response: %v", ErrUpstreamFailure, errMalformedPayload, err)
	}
	return nil
}

func observe(source, status string, start time.Time) {
	observability.UpstreamCallsTotal.WithLabelValues(source, status).Inc()
	observability.UpstreamDuration.WithLabelValues(source, status).Observe(time.Since(start).Seconds())
}

func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, errMalformedPayload) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (t transport) calculateBackoff(attempt int) time.Duration {
	delay := float64(t.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if t.retry.MaxDelay > 0 && delay > float64(t.retry.MaxDelay) {
		delay = float64(t.retry.MaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// upstreamError is the error body shape of both Open-Meteo ("reason") and the
// prediction service ("detail").
type upstreamError struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	reason := readReason(resp.Body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w%s", ErrRateLimited, reason)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d%s", ErrUpstreamFailure, resp.StatusCode, reason)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: HTTP %d%s", ErrInvalidRequest, resp.StatusCode, reason)
	default:
		return fmt.Errorf("%w: unexpected HTTP %d%s", ErrUpstreamFailure, resp.StatusCode, reason)
	}
}

func readReason(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var ue upstreamError
	if json.Unmarshal(raw, &ue) == nil {
		if ue.Reason != "" {
			return ": " + ue.Reason
		}
		if ue.Detail != "" {
			return ": " + ue.Detail
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

// buildURL sets params on base, keeping any query the base already carries.
func buildURL(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid API URL: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.HasPrefix(u.Scheme, "http") {
		return fmt.Errorf("%s: invalid URL %q", name, raw)
	}
	return nil
}
