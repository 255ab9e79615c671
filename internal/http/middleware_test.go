package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/nostradamus/internal/health"
	"github.com/kjstillabower/nostradamus/internal/observability"
)

// TestCorrelationIDMiddleware verifies that a caller id is echoed and a missing one is generated,
// and that handlers see the same id in their context.
func TestCorrelationIDMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"client provided", "client-provided-id"},
		{"generated", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			router := mux.NewRouter()
			router.Use(CorrelationIDMiddleware(zap.NewNop()))
			router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
				seen = observability.CorrelationID(r.Context())
			})

			req := httptest.NewRequest("GET", "/x", nil)
			if tt.header != "" {
				req.Header.Set("X-Correlation-ID", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			got := w.Header().Get("X-Correlation-ID")
			if got == "" {
				t.Fatal("X-Correlation-ID header missing")
			}
			if tt.header != "" && got != tt.header {
				t.Errorf("X-Correlation-ID = %q, want %q", got, tt.header)
			}
			if seen != got {
				t.Errorf("context correlation id = %q, want %q", seen, got)
			}
		})
	}
}

// TestMiddleware_ErrorCarriesRequestID verifies that error envelopes carry the correlation id.
func TestMiddleware_ErrorCarriesRequestID(t *testing.T) {
	h, _ := newTestHandler(&mockFetcher{}, Config{})
	req := httptest.NewRequest("GET", "/dashboards/missing", nil)
	req.Header.Set("X-Correlation-ID", "req-42")
	w := httptest.NewRecorder()
	NewRouter(h, zap.NewNop(), nil, time.Second).ServeHTTP(w, req)

	if got := decodeError(t, w).Error.RequestID; got != "req-42" {
		t.Errorf("requestId = %q, want req-42", got)
	}
}

// TestMetricsMiddleware_RouteTemplate verifies that requests are counted by route template, not raw path.
func TestMetricsMiddleware_RouteTemplate(t *testing.T) {
	h, _ := newTestHandler(&mockFetcher{}, Config{})
	counter := observability.HTTPRequestsTotal.WithLabelValues("GET", "/dashboards/{id}", "4xx")
	before := testutil.ToFloat64(counter)

	serve(t, h, "GET", "/dashboards/abc", "")
	serve(t, h, "GET", "/dashboards/def", "")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("httpRequestsTotal{/dashboards/{id},4xx} delta = %v, want 2", got)
	}
}

// TestMetricsMiddleware_InFlight verifies that a request is counted in flight while it runs.
func TestMetricsMiddleware_InFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	router := mux.NewRouter()
	router.Use(MetricsMiddleware)
	router.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	})

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/slow", nil))
		close(done)
	}()
	<-started
	if got := InFlightCount(); got < 1 {
		t.Errorf("InFlightCount() = %d, want >= 1", got)
	}
	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForInFlight(ctx, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() error = %v", err)
	}
}

// TestTimeoutMiddleware_CancelsContextAfterTimeout verifies that a blocked upstream call
// is cut off by the request deadline and reported as a timeout.
func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	f := &mockFetcher{block: make(chan struct{})}
	defer close(f.block)
	h, _ := newTestHandler(f, Config{})

	req := httptest.NewRequest("GET", "/api/weather/forecast?lat=52.23&lon=21.01", nil)
	w := httptest.NewRecorder()
	NewRouter(h, zap.NewNop(), nil, 50*time.Millisecond).ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d (timeout should cause upstream error)", w.Code, http.StatusServiceUnavailable)
	}
	if got := decodeError(t, w).Error.Code; got != "TIMEOUT" {
		t.Errorf("error code = %q, want TIMEOUT", got)
	}
}

// TestRateLimitMiddleware_Returns429WhenExceeded verifies denials are answered with 429
// and recorded for overload detection, while /health stays unlimited.
func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	h, tracker := newTestHandler(&mockFetcher{}, Config{})
	router := NewRouter(h, zap.NewNop(), rate.NewLimiter(1, 2), 5*time.Second)
	before := testutil.ToFloat64(observability.RateLimitDeniedTotal)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/weather/forecast?lat=52.23&lon=21.01", nil))
		if i < 2 {
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status = %d, want 200", i, w.Code)
			}
			continue
		}
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d: status = %d, want 429", i, w.Code)
		}
		if got := decodeError(t, w).Error.Code; got != "RATE_LIMITED" {
			t.Errorf("error.code = %q, want RATE_LIMITED", got)
		}
	}

	if got := tracker.DenialCount(time.Minute); got != 1 {
		t.Errorf("DenialCount() = %d, want 1", got)
	}
	if got := testutil.ToFloat64(observability.RateLimitDeniedTotal) - before; got != 1 {
		t.Errorf("rateLimitDeniedTotal delta = %v, want 1", got)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200 (not rate limited)", w.Code)
	}
}

// TestRateLimitMiddleware_NilLimiterPassesThrough verifies that a nil limiter disables limiting.
func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	tracker := health.NewTracker(time.Minute)
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil, tracker))
	router.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {})

	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200 (nil limiter should allow)", i, w.Code)
		}
	}
	if got := tracker.DenialCount(time.Minute); got != 0 {
		t.Errorf("DenialCount() = %d, want 0", got)
	}
}

// TestRouter_MetricsRoute verifies that /metrics is served.
func TestRouter_MetricsRoute(t *testing.T) {
	h, _ := newTestHandler(&mockFetcher{}, Config{})
	w := serve(t, h, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

// TestRouter_MethodNotAllowed verifies that routes are bound to their methods.
func TestRouter_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(&mockFetcher{}, Config{})
	w := serve(t, h, "GET", "/dashboards", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /dashboards status = %d, want 405", w.Code)
	}
}
