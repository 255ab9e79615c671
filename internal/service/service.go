package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/cache"
	"github.com/kjstillabower/nostradamus/internal/client"
	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/timeseries"
)

// Archive persists observed hourly history. Implemented by the store package.
type Archive interface {
	SaveObservations(ctx context.Context, lat, lon float64, payload models.WeatherPayload) (int64, error)
}

// Options configures a WeatherService.
type Options struct {
	// ForecastTTL is how long a forecast payload is served without refetching.
	ForecastTTL time.Duration
	// HistoryTTL is the same for archive payloads, which change far less often.
	HistoryTTL time.Duration
	// HistoryDays and ForecastDays shape the windows Prefetch loads.
	HistoryDays  int
	ForecastDays int
	// Archive is optional; nil disables archiving.
	Archive Archive
	Logger  *zap.Logger
}

// WeatherService orchestrates weather data retrieval using cache-aside pattern
// with upstream fallback. Concurrent misses on one key share a single upstream call.
type WeatherService struct {
	weather   client.WeatherClient
	predictor client.PredictionClient
	cache     cache.Cache
	opts      Options
	coalescer *coalescer
	logger    *zap.Logger
	now       func() time.Time
}

// NewWeatherService creates a new WeatherService with the provided dependencies.
func NewWeatherService(weather client.WeatherClient, predictor client.PredictionClient, c cache.Cache, opts Options) *WeatherService {
	if opts.ForecastTTL <= 0 {
		opts.ForecastTTL = 10 * time.Minute
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = time.Hour
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 7
	}
	if opts.ForecastDays <= 0 {
		opts.ForecastDays = 7
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		weather:   weather,
		predictor: predictor,
		cache:     c,
		opts:      opts,
		coalescer: newCoalescer(),
		logger:    logger,
		now:       time.Now,
	}
}

// HistoryRange returns the archive window ending yesterday: today-days .. today-1.
func HistoryRange(now time.Time, days int) (startDate, endDate string) {
	today := timeseries.CivilDate(now.UTC())
	return timeseries.FormatDate(today.AddDate(0, 0, -days)), timeseries.FormatDate(today.AddDate(0, 0, -1))
}

// History returns observed weather for the inclusive date range.
func (s *WeatherService) History(ctx context.Context, lat, lon float64, startDate, endDate string) (models.WeatherPayload, error) {
	key := cache.HistoryKey(lat, lon, startDate, endDate)
	payload, err := s.cached(ctx, client.SourceHistory, key, s.opts.HistoryTTL, func(ctx context.Context) (models.WeatherPayload, error) {
		p, err := s.weather.FetchHistory(ctx, lat, lon, startDate, endDate)
		if err == nil {
			s.archive(ctx, lat, lon, p)
		}
		return p, err
	})
	if err != nil {
		return models.WeatherPayload{}, fmt.Errorf("history for %.4f,%.4f: %w", lat, lon, err)
	}
	return payload, nil
}

// Forecast returns the forecast for the next days days.
func (s *WeatherService) Forecast(ctx context.Context, lat, lon float64, days int) (models.WeatherPayload, error) {
	key := cache.ForecastKey(lat, lon, days)
	payload, err := s.cached(ctx, client.SourceForecast, key, s.opts.ForecastTTL, func(ctx context.Context) (models.WeatherPayload, error) {
		return s.weather.FetchForecast(ctx, lat, lon, days)
	})
	if err != nil {
		return models.WeatherPayload{}, fmt.Errorf("forecast for %.4f,%.4f: %w", lat, lon, err)
	}
	return payload, nil
}

// Prediction fetches a prediction run. Runs are not cached: each one reflects
// the provider's current model.
func (s *WeatherService) Prediction(ctx context.Context, lat, lon float64, days int) (models.PredictionPayload, error) {
	if s.predictor == nil {
		return models.PredictionPayload{}, fmt.Errorf("prediction: %w: no provider configured", client.ErrUpstreamFailure)
	}
	p, err := s.predictor.FetchPrediction(ctx, lat, lon, days)
	if err != nil {
		return models.PredictionPayload{}, fmt.Errorf("prediction for %.4f,%.4f: %w", lat, lon, err)
	}
	return p, nil
}

// Prefetch loads the default history and forecast windows for loc into the cache.
func (s *WeatherService) Prefetch(ctx context.Context, loc models.Location) error {
	start, end := HistoryRange(s.now(), s.opts.HistoryDays)
	if _, err := s.History(ctx, loc.Lat, loc.Lon, start, end); err != nil {
		return err
	}
	_, err := s.Forecast(ctx, loc.Lat, loc.Lon, s.opts.ForecastDays)
	return err
}

// cached implements cache-aside for one key. A fresh entry is returned as is; on a
// miss or a stale entry the upstream is called once per key across concurrent
// callers. If the upstream fails and a stale entry exists it is served instead.
func (s *WeatherService) cached(ctx context.Context, kind, key string, ttl time.Duration, fetch func(context.Context) (models.WeatherPayload, error)) (models.WeatherPayload, error) {
	logger := observability.LoggerFromContext(ctx, s.logger)
	start := time.Now()

	entry, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if ok && entry.Fresh(s.now()) {
		observability.CacheHitsTotal.WithLabelValues(kind).Inc()
		logger.Debug("cache hit", zap.String("key", key))
		return entry.Value, nil
	}

	logger.Debug("cache miss, fetching upstream", zap.String("key", key), zap.Bool("stale_available", ok))
	data, shared, upstreamErr := s.coalescer.do(ctx, key, func(fetchCtx context.Context) (models.WeatherPayload, error) {
		data, err := fetch(fetchCtx)
		if err != nil {
			return data, err
		}
		if setErr := s.cache.Set(fetchCtx, key, data, ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set").Inc()
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
		return data, nil
	})
	if shared {
		observability.CoalescedRequestsTotal.WithLabelValues(kind).Inc()
	}
	if upstreamErr != nil {
		if ok {
			age := s.now().Sub(entry.StoredAt)
			observability.StaleCacheServesTotal.WithLabelValues(kind).Inc()
			logger.Info("serving stale cache",
				zap.String("key", key),
				zap.Duration("age", age),
				zap.String("reason", string(client.CategorizeError(upstreamErr))))
			stale := entry.Value
			stale.Stale = true
			return stale, nil
		}
		return models.WeatherPayload{}, upstreamErr
	}

	logger.Debug("weather served", zap.String("key", key), zap.Bool("shared", shared), zap.Duration("duration", time.Since(start)))
	return data, nil
}

func (s *WeatherService) archive(ctx context.Context, lat, lon float64, p models.WeatherPayload) {
	if s.opts.Archive == nil {
		return
	}
	n, err := s.opts.Archive.SaveObservations(ctx, lat, lon, p)
	if err != nil {
		observability.LoggerFromContext(ctx, s.logger).Warn("archive observations failed",
			zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		return
	}
	observability.ArchivedObservationsTotal.Add(float64(n))
}
