package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency. Watch p95/p99 on /dashboards routes, which fan out to upstreams.
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// Upstream calls per source (history, forecast, prediction) and outcome label from CategorizeError.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s on the archive API.
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per source. High values mean an unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Cache hits per payload kind (history, forecast).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors per operation (get, set).
	CacheErrorsTotal *prometheus.CounterVec

	// Stale entries served because the upstream failed.
	StaleCacheServesTotal *prometheus.CounterVec

	// Callers that joined an in-flight fetch instead of issuing their own.
	CoalescedRequestsTotal *prometheus.CounterVec

	// Input records dropped during a merge because their timestamp did not parse.
	SkippedRecordsTotal *prometheus.CounterVec

	// Fetch results discarded because the dashboard moved to another location meanwhile.
	StaleResultsDiscardedTotal *prometheus.CounterVec

	// Carousel renders that fell back to the first seven days.
	CarouselFallbacksTotal prometheus.Counter

	// Circuit breaker state per breaker: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Live dashboard sessions.
	DashboardSessions prometheus.Gauge

	// Location loads. Per-location counts use the tracked allow-list; others go to "other".
	LocationQueriesTotal           prometheus.Counter
	LocationQueriesByLocationTotal *prometheus.CounterVec

	// Scheduled job runs by job and result.
	ScheduledJobRunsTotal *prometheus.CounterVec

	// Hourly rows written to the observation archive.
	ArchivedObservationsTotal prometheus.Counter

	RateLimitDeniedTotal prometheus.Counter

	trackedLocationsMu sync.RWMutex
	trackedLocations   map[string]struct{}

	loadGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "httpRequestsTotal", Help: "Total number of HTTP requests"},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "httpRequestsInFlight", Help: "Number of HTTP requests currently being served"},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstreamCallsTotal", Help: "Total number of upstream weather API calls"},
		[]string{"source", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream weather API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstreamRetriesTotal", Help: "Total number of upstream retry attempts"},
		[]string{"source"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheHitsTotal", Help: "Total number of cache hits"},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cacheErrorsTotal", Help: "Cache backend errors by operation"},
		[]string{"operation"},
	)
	StaleCacheServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "staleCacheServesTotal", Help: "Stale cache entries served after upstream failure"},
		[]string{"cacheType"},
	)
	CoalescedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "coalescedRequestsTotal", Help: "Requests that shared an in-flight upstream fetch"},
		[]string{"source"},
	)
	SkippedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "skippedRecordsTotal", Help: "Records dropped during merge because of an unparseable timestamp"},
		[]string{"source"},
	)
	StaleResultsDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "staleResultsDiscardedTotal", Help: "Fetch results discarded because the location changed"},
		[]string{"operation"},
	)
	CarouselFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "carouselFallbacksTotal", Help: "Carousel windows that fell back to the first seven days"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "circuitBreakerState", Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)"},
		[]string{"breaker"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "circuitBreakerTransitionsTotal", Help: "Circuit breaker state transitions"},
		[]string{"breaker", "from", "to"},
	)
	DashboardSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "dashboardSessions", Help: "Number of live dashboard sessions"},
	)
	LocationQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "locationQueriesTotal", Help: "Total number of location loads"},
	)
	LocationQueriesByLocationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "locationQueriesByLocationTotal", Help: "Location loads by name (allow-list; others use location=other)"},
		[]string{"location"},
	)
	ScheduledJobRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduledJobRunsTotal", Help: "Scheduled job runs by job and result"},
		[]string{"job", "result"},
	)
	ArchivedObservationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "archivedObservationsTotal", Help: "Hourly observations written to the archive"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rateLimitDeniedTotal", Help: "Total number of requests denied by rate limiter (429)"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal, StaleCacheServesTotal, CoalescedRequestsTotal,
		SkippedRecordsTotal, StaleResultsDiscardedTotal, CarouselFallbacksTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		DashboardSessions,
		LocationQueriesTotal, LocationQueriesByLocationTotal,
		ScheduledJobRunsTotal, ArchivedObservationsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterLoadGauges exposes the rate-limited request and rejection counts of the
// health tracker's sliding window. Only the first call registers.
func RegisterLoadGauges(requests, rejects func() float64) {
	loadGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				requests,
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window",
				},
				rejects,
			),
		)
	})
}

// RecordCircuitBreakerTransition records a breaker moving between states.
func RecordCircuitBreakerTransition(breaker, from, to string, stateValue float64) {
	CircuitBreakerTransitionsTotal.WithLabelValues(breaker, from, to).Inc()
	CircuitBreakerState.WithLabelValues(breaker).Set(stateValue)
}

// SetTrackedLocations sets the allow-list for location metrics. Non-tracked locations increment "other".
func SetTrackedLocations(locations []string) {
	trackedLocationsMu.Lock()
	defer trackedLocationsMu.Unlock()
	trackedLocations = make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		trackedLocations[normalizeLocationForMetrics(loc)] = struct{}{}
	}
}

// RecordLocationQuery records a dashboard location load.
func RecordLocationQuery(location string) {
	LocationQueriesTotal.Inc()
	loc := normalizeLocationForMetrics(location)
	trackedLocationsMu.RLock()
	_, ok := trackedLocations[loc]
	trackedLocationsMu.RUnlock()
	if ok {
		LocationQueriesByLocationTotal.WithLabelValues(loc).Inc()
	} else {
		LocationQueriesByLocationTotal.WithLabelValues("other").Inc()
	}
}

func normalizeLocationForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
