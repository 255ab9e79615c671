package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match their call sites.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/dashboards/{id}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/dashboards/{id}").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("history", "success").Inc()
	UpstreamDuration.WithLabelValues("forecast", "server_error").Observe(0.1)
	UpstreamRetriesTotal.WithLabelValues("prediction").Inc()
	CacheHitsTotal.WithLabelValues("history").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	StaleCacheServesTotal.WithLabelValues("forecast").Inc()
	CoalescedRequestsTotal.WithLabelValues("forecast").Inc()
	SkippedRecordsTotal.WithLabelValues("history").Inc()
	StaleResultsDiscardedTotal.WithLabelValues("predict").Inc()
	CarouselFallbacksTotal.Inc()
	DashboardSessions.Set(2)
	ScheduledJobRunsTotal.WithLabelValues("warm_cache", "success").Inc()
	ArchivedObservationsTotal.Add(24)
	RecordCircuitBreakerTransition("open-meteo", "closed", "open", 2)
}

// TestRecordLocationQuery verifies allow-listed locations get their own label and
// everything else is folded into "other".
func TestRecordLocationQuery(t *testing.T) {
	SetTrackedLocations([]string{"Warsaw", "krakow"})
	defer SetTrackedLocations(nil)

	beforeWarsaw := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("warsaw"))
	beforeOther := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("other"))

	RecordLocationQuery(" WARSAW ")
	RecordLocationQuery("Gdansk")

	if got := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("warsaw")) - beforeWarsaw; got != 1 {
		t.Errorf("warsaw delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(LocationQueriesByLocationTotal.WithLabelValues("other")) - beforeOther; got != 1 {
		t.Errorf("other delta = %v, want 1", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves the text exposition format.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{"httpRequestsTotal", "carouselFallbacksTotal"} {
		if !strings.Contains(body, name) {
			t.Errorf("MetricsHandler response missing %s", name)
		}
	}
}
