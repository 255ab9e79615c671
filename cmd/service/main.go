package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/nostradamus/internal/cache"
	"github.com/kjstillabower/nostradamus/internal/circuitbreaker"
	"github.com/kjstillabower/nostradamus/internal/client"
	"github.com/kjstillabower/nostradamus/internal/config"
	"github.com/kjstillabower/nostradamus/internal/dashboard"
	"github.com/kjstillabower/nostradamus/internal/health"
	httphandler "github.com/kjstillabower/nostradamus/internal/http"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/scheduler"
	"github.com/kjstillabower/nostradamus/internal/service"
	"github.com/kjstillabower/nostradamus/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	newBreaker := func(name string) *circuitbreaker.CircuitBreaker {
		cb := circuitbreaker.New(circuitbreaker.Config{
			Name:             name,
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			Timeout:          cfg.BreakerTimeout,
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				observability.RecordCircuitBreakerTransition(name, from.String(), to.String(), float64(to))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(name).Set(0)
		return cb
	}
	retry := client.RetryConfig{Attempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: cfg.RetryMaxDelay}

	openMeteoBreaker := newBreaker("open_meteo")
	weatherClient, err := client.NewOpenMeteoClient(client.OpenMeteoConfig{
		ArchiveURL:  cfg.ArchiveAPIURL,
		ForecastURL: cfg.ForecastAPIURL,
		Timeout:     cfg.OpenMeteoTimeout,
		Retry:       retry,
		Breaker:     openMeteoBreaker,
	})
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	breakers := []*circuitbreaker.CircuitBreaker{openMeteoBreaker}

	var predictor client.PredictionClient
	if cfg.PredictionURL != "" {
		predictionBreaker := newBreaker("prediction")
		pc, err := client.NewPredictionClient(client.PredictionConfig{
			URL:     cfg.PredictionURL,
			Timeout: cfg.PredictionTimeout,
			Retry:   retry,
			Breaker: predictionBreaker,
		})
		if err != nil {
			logger.Fatal("prediction client", zap.Error(err))
		}
		predictor = pc
		breakers = append(breakers, predictionBreaker)
	} else {
		logger.Warn("prediction url not configured; predictions disabled")
	}

	checks := make(map[string]func(context.Context) error)
	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cache.MemcachedConfig{
			Addrs:        cfg.MemcachedAddrs,
			Timeout:      cfg.MemcachedTimeout,
			MaxIdleConns: cfg.MemcachedMaxIdleConns,
			StaleFor:     cfg.StaleTTL,
		})
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		checks["cache"] = func(context.Context) error { return mc.Ping() }
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache(cfg.StaleTTL)
		logger.Info("cache backend: in_memory")
	}

	opts := service.Options{
		ForecastTTL:  cfg.ForecastTTL,
		HistoryTTL:   cfg.HistoryTTL,
		HistoryDays:  cfg.HistoryDays,
		ForecastDays: cfg.ForecastDays,
		Logger:       logger,
	}
	var archive *store.Archive
	if cfg.ArchiveDatabaseURL != "" {
		openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
		archive, err = store.Open(openCtx, cfg.ArchiveDatabaseURL)
		openCancel()
		if err != nil {
			logger.Fatal("observation archive", zap.Error(err))
		}
		opts.Archive = archive
		checks["archive"] = archive.Ping
		logger.Info("observation archive enabled")
	}
	weatherService := service.NewWeatherService(weatherClient, predictor, cacheSvc, opts)

	registry := dashboard.NewRegistry(weatherService, dashboard.Config{
		HistoryDays:    cfg.HistoryDays,
		ForecastDays:   cfg.ForecastDays,
		PredictionDays: cfg.PredictionDays,
	}, cfg.SessionTTL, logger)

	window := cfg.OverloadWindow
	if cfg.DegradedWindow > window {
		window = cfg.DegradedWindow
	}
	if cfg.IdleWindow > window {
		window = cfg.IdleWindow
	}
	tracker := health.NewTracker(window)
	observability.RegisterLoadGauges(
		func() float64 { return float64(tracker.RequestCount(cfg.OverloadWindow)) },
		func() float64 { return float64(tracker.DenialCount(cfg.OverloadWindow)) },
	)
	observability.SetTrackedLocations(cfg.LocationNames())

	jobs := scheduler.New(scheduler.Config{
		WarmInterval:  cfg.WarmInterval,
		SweepInterval: cfg.SweepInterval,
		Locations:     cfg.TrackedLocations,
	}, cache.NewCacheWarmer(weatherService, logger), registry, logger)
	if err := jobs.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, registry, tracker, httphandler.Config{
		HistoryDays:     cfg.HistoryDays,
		ForecastDays:    cfg.ForecastDays,
		PredictionDays:  cfg.PredictionDays,
		DefaultLocation: cfg.DefaultLocation,
		Health: health.Thresholds{
			OverloadWindow:       cfg.OverloadWindow,
			OverloadThresholdPct: cfg.OverloadThresholdPct,
			RateLimitRPS:         cfg.RateLimitRPS,
			DegradedWindow:       cfg.DegradedWindow,
			DegradedErrorPct:     cfg.DegradedErrorPct,
			IdleWindow:           cfg.IdleWindow,
			IdleThreshold:        cfg.IdleThresholdReqPerMin,
			MinimumLifespan:      cfg.MinimumLifespan,
			StartTime:            time.Now(),
		},
		Checks:   checks,
		Breakers: breakers,
	}, logger)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	tracker.SetShuttingDown(true)
	jobs.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if archive != nil {
		archive.Close()
	}
	logger.Info("shutdown complete")
}
