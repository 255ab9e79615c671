//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/nostradamus/internal/cache"
	"github.com/kjstillabower/nostradamus/internal/client"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	ArchiveURL    string
	ForecastURL   string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless OPEN_METEO_LIVE is set; Open-Meteo needs no key.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("OPEN_METEO_LIVE") == "" {
		t.Skip("OPEN_METEO_LIVE not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		ArchiveURL:    os.Getenv("ARCHIVE_API_URL"),
		ForecastURL:   os.Getenv("FORECAST_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a live Open-Meteo client. Empty URLs use the public endpoints.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenMeteoClient {
	t.Helper()
	c, err := client.NewOpenMeteoClient(client.OpenMeteoConfig{
		ArchiveURL:  cfg.ArchiveURL,
		ForecastURL: cfg.ForecastURL,
		Timeout:     10 * time.Second,
		Retry:       client.DefaultRetry(),
	})
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a fully configured service for integration tests.
// Falls back to the in-memory cache when memcached is requested but unreachable.
// Returns weather service, cache instance, and cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache, func()) {
	t.Helper()
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	var cacheSvc cache.Cache = cache.NewInMemoryCache(time.Hour)
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cache.MemcachedConfig{Addrs: cfg.MemcachedAddr, Timeout: 500 * time.Millisecond, MaxIdleConns: 2, StaleFor: time.Hour})
		if err == nil && mc.Ping() == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available, using in-memory cache")
		}
	}

	svc := service.NewWeatherService(SetupIntegrationClient(t, cfg), nil, cacheSvc, service.Options{Logger: logger})
	return svc, cacheSvc, cleanup
}
