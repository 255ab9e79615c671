// Package dashboard owns the per-session dashboard state: the location being
// shown, its unified hourly and daily series, carousel position, selected day
// and the latest prediction run.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/timeseries"
)

var (
	// ErrStaleResult is returned when a fetch completes after the dashboard moved
	// on to another location load. The result is discarded.
	ErrStaleResult = errors.New("stale result")
	// ErrUnknownDay is returned by SelectDay for a date not in the daily series.
	ErrUnknownDay = errors.New("day not in daily series")
	// ErrNoLocation is returned by operations that need a loaded location.
	ErrNoLocation = errors.New("no location loaded")
)

// Fetcher retrieves upstream payloads. Implemented by service.WeatherService.
type Fetcher interface {
	History(ctx context.Context, lat, lon float64, startDate, endDate string) (models.WeatherPayload, error)
	Forecast(ctx context.Context, lat, lon float64, days int) (models.WeatherPayload, error)
	Prediction(ctx context.Context, lat, lon float64, days int) (models.PredictionPayload, error)
}

// Config shapes the windows a dashboard loads.
type Config struct {
	HistoryDays    int
	ForecastDays   int
	PredictionDays int
}

func (c Config) withDefaults() Config {
	if c.HistoryDays <= 0 {
		c.HistoryDays = 7
	}
	if c.ForecastDays <= 0 {
		c.ForecastDays = 7
	}
	if c.PredictionDays <= 0 {
		c.PredictionDays = 7
	}
	return c
}

// State is everything a dashboard shows. It is plain data and serializes to JSON.
type State struct {
	// Generation increments on every location load. Fetch results carrying an
	// older generation are discarded.
	Generation uint64 `json:"generation"`

	Location         models.Location        `json:"location"`
	Unified          timeseries.Series      `json:"unified"`
	Daily            timeseries.DailySeries `json:"daily"`
	UTCOffsetSeconds int                    `json:"utc_offset_seconds"`
	Timezone         string                 `json:"timezone,omitempty"`

	CarouselOffset int    `json:"carousel_offset"`
	SelectedDate   string `json:"selected_date,omitempty"`

	ModelPerformance  *models.ModelPerformance `json:"model_performance,omitempty"`
	HistoryComparison models.HistoryComparison `json:"history_comparison"`

	Loading    bool      `json:"loading"`
	Predicting bool      `json:"predicting"`
	LastError  string    `json:"last_error,omitempty"`
	Stale      bool      `json:"stale,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Controller is one dashboard session. All methods are safe for concurrent use;
// fetches run without holding the lock.
type Controller struct {
	mu      sync.Mutex
	state   State
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time

	// series counts successful loads and seriesLoc is the location the current
	// Unified and Daily belong to. They lag Generation and Location while a
	// load is in flight or after one failed.
	series    uint64
	seriesLoc models.Location
	// predictRun identifies the latest Predict call; older runs are discarded.
	predictRun uint64
}

// NewController creates a dashboard with no location loaded.
func NewController(fetcher Fetcher, cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// snapshot copies state so callers never share slices with the controller. Caller holds mu.
func (c *Controller) snapshot() State {
	s := c.state
	s.Unified = append(timeseries.Series(nil), c.state.Unified...)
	s.Daily = append(timeseries.DailySeries(nil), c.state.Daily...)
	return s
}

// today is the calendar date at the loaded location. Caller holds mu.
func (c *Controller) today() time.Time {
	return timeseries.CivilDate(c.wallClock())
}

func (c *Controller) wallClock() time.Time {
	return timeseries.WallClock(c.now(), c.state.UTCOffsetSeconds)
}
