package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/circuitbreaker"
	"github.com/kjstillabower/nostradamus/internal/client"
	"github.com/kjstillabower/nostradamus/internal/dashboard"
	"github.com/kjstillabower/nostradamus/internal/health"
	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/validation"
)

const (
	serviceName    = "nostradamus"
	checkTimeout   = 2 * time.Second
	locationMaxLen = 100
)

// Config holds handler defaults and health wiring.
type Config struct {
	HistoryDays     int
	ForecastDays    int
	PredictionDays  int
	DefaultLocation models.Location

	Health health.Thresholds
	// Checks are dependency probes reported under "checks" on /health, keyed by name.
	// A failing probe is reported but does not change the status.
	Checks   map[string]func(context.Context) error
	Breakers []*circuitbreaker.CircuitBreaker
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather  dashboard.Fetcher
	registry *dashboard.Registry
	tracker  *health.Tracker
	cfg      Config
	logger   *zap.Logger

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(weather dashboard.Fetcher, registry *dashboard.Registry, tracker *health.Tracker, cfg Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracker == nil {
		tracker = health.NewTracker(0)
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 7
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 7
	}
	if cfg.PredictionDays <= 0 {
		cfg.PredictionDays = 7
	}
	return &Handler{
		weather:  weather,
		registry: registry,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.tracker.Evaluate(h.cfg.Health)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.Status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.Status),
			zap.String("reason", result.Reason))
	}
	h.healthStatusPrev = result.Status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string, len(h.cfg.Breakers)+len(h.cfg.Checks))
	for _, b := range h.cfg.Breakers {
		switch b.State() {
		case circuitbreaker.StateClosed:
			checks[b.Name()] = "healthy"
		case circuitbreaker.StateHalfOpen:
			checks[b.Name()] = "recovering"
		default:
			checks[b.Name()] = "unhealthy"
		}
	}
	for name, check := range h.cfg.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		if err := check(ctx); err != nil {
			checks[name] = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
		cancel()
	}

	statusCode := http.StatusOK
	if !result.Available {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, map[string]interface{}{
		"status":    result.Status,
		"service":   serviceName,
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// record feeds the health tracker. Only failures that say something about this
// instance or its upstreams count as errors.
func (h *Handler) record(err error) {
	if err == nil {
		h.tracker.RecordSuccess()
		return
	}
	if status, _ := classifyError(err); status >= http.StatusInternalServerError {
		h.tracker.RecordError()
	}
}

// classifyError maps an error to an HTTP status and a stable error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, validation.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, client.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, dashboard.ErrNotFound):
		return http.StatusNotFound, "DASHBOARD_NOT_FOUND"
	case errors.Is(err, dashboard.ErrUnknownDay):
		return http.StatusNotFound, "UNKNOWN_DAY"
	case errors.Is(err, dashboard.ErrNoLocation):
		return http.StatusConflict, "NO_LOCATION"
	case errors.Is(err, dashboard.ErrStaleResult):
		return http.StatusConflict, "STALE_RESULT"
	case errors.Is(err, client.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "CIRCUIT_OPEN"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "TIMEOUT"
	default:
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	}
}

var errorMessages = map[string]string{
	"DASHBOARD_NOT_FOUND":  "Dashboard not found",
	"UNKNOWN_DAY":          "Day is not in the daily series",
	"NO_LOCATION":          "No location loaded",
	"STALE_RESULT":         "Superseded by a newer request",
	"CIRCUIT_OPEN":         "Upstream temporarily disabled",
	"TIMEOUT":              "Upstream request timed out",
	"UPSTREAM_UNAVAILABLE": "Unable to fetch weather data",
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps err to a status and code. Client errors carry the error
// text; server-side failures get a fixed message and the cause is logged at DEBUG.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	message, ok := errorMessages[code]
	if !ok {
		message = err.Error()
	}
	writeError(w, r, status, code, message)
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context(), nil).Debug("upstream error",
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
	}
}

// decodeBody decodes a JSON body into v. Decoding errors are reported as invalid input.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return invalidInput(err)
	}
	return nil
}
