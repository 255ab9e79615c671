package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	ArchiveAPIURL    string
	ForecastAPIURL   string
	OpenMeteoTimeout time.Duration

	PredictionURL     string
	PredictionTimeout time.Duration

	RequestTimeout time.Duration

	CacheBackend string // "in_memory" or "memcached"
	ForecastTTL  time.Duration
	HistoryTTL   time.Duration
	StaleTTL     time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerTimeout          time.Duration

	HistoryDays     int
	ForecastDays    int
	PredictionDays  int
	DefaultLocation models.Location
	SessionTTL      time.Duration

	ArchiveDatabaseURL string

	WarmInterval  time.Duration
	SweepInterval time.Duration

	ShutdownTimeout time.Duration

	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int

	TrackedLocations []models.Location
}

type locationConfig struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	OpenMeteo struct {
		ArchiveURL  string `yaml:"archive_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"open_meteo"`

	Prediction struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"prediction"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		HistoryTTL string `yaml:"history_ttl"`
		StaleTTL   string `yaml:"stale_ttl"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Dashboard struct {
		HistoryDays     int            `yaml:"history_days"`
		ForecastDays    int            `yaml:"forecast_days"`
		PredictionDays  int            `yaml:"prediction_days"`
		DefaultLocation locationConfig `yaml:"default_location"`
		SessionTTL      string         `yaml:"session_ttl"`
	} `yaml:"dashboard"`

	Archive struct {
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"archive"`

	Scheduler struct {
		WarmInterval  string `yaml:"warm_interval"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"scheduler"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow         string `yaml:"overload_window"`
		OverloadThresholdPct   int    `yaml:"overload_threshold_pct"`
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedLocations []locationConfig `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

// Load reads an optional .env file, then config/{ENV_NAME}.yaml (default dev)
// relative to the working directory. Env vars override file values.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load with an explicit project root.
func LoadFrom(root string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("SERVER_PORT"), fc.Server.Port, "8080")

	cfg.ArchiveAPIURL = firstNonEmpty(fc.OpenMeteo.ArchiveURL, "https://archive-api.open-meteo.com/v1/archive")
	cfg.ForecastAPIURL = firstNonEmpty(fc.OpenMeteo.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.OpenMeteoTimeout = parseDurationOrZero(fc.OpenMeteo.Timeout, 10*time.Second)

	cfg.PredictionURL = firstNonEmpty(os.Getenv("PREDICTION_URL"), fc.Prediction.URL)
	cfg.PredictionTimeout = parseDuration(fc.Prediction.Timeout, 60*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory")))
	cfg.ForecastTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.HistoryTTL = parseDuration(fc.Cache.HistoryTTL, time.Hour)
	cfg.StaleTTL = parseDurationOrZero(fc.Cache.StaleTTL, time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.RetryAttempts = positiveOr(fc.Reliability.RetryMaxAttempts, 3)
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 20)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 50)
	cfg.BreakerFailureThreshold = positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5)
	cfg.BreakerSuccessThreshold = positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 2)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.HistoryDays = positiveOr(fc.Dashboard.HistoryDays, 7)
	cfg.ForecastDays = positiveOr(fc.Dashboard.ForecastDays, 7)
	cfg.PredictionDays = positiveOr(fc.Dashboard.PredictionDays, 7)
	cfg.DefaultLocation = models.Location{Name: "Warsaw", Lat: 52.2297, Lon: 21.0122}
	if dl := fc.Dashboard.DefaultLocation; dl.Name != "" {
		cfg.DefaultLocation = models.Location(dl)
	}
	cfg.SessionTTL = parseDuration(fc.Dashboard.SessionTTL, 30*time.Minute)

	cfg.ArchiveDatabaseURL = firstNonEmpty(os.Getenv("ARCHIVE_DATABASE_URL"), fc.Archive.DatabaseURL)

	cfg.WarmInterval = parseDurationOrZero(fc.Scheduler.WarmInterval, 15*time.Minute)
	cfg.SweepInterval = parseDuration(fc.Scheduler.SweepInterval, time.Minute)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.IdleThresholdReqPerMin = positiveOr(fc.Lifecycle.IdleThresholdReqPerMin, 1)
	cfg.IdleWindow = parseDurationOrZero(fc.Lifecycle.IdleWindow, 0)
	cfg.MinimumLifespan = parseDurationOrZero(fc.Lifecycle.MinimumLifespan, 0)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Lifecycle.DegradedErrorPct, 50)

	for _, l := range fc.Metrics.TrackedLocations {
		cfg.TrackedLocations = append(cfg.TrackedLocations, models.Location(l))
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LocationNames returns the tracked location names, for the metrics allow-list.
func (c *Config) LocationNames() []string {
	names := make([]string, 0, len(c.TrackedLocations))
	for _, l := range c.TrackedLocations {
		names = append(names, l.Name)
	}
	return names
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func positiveOr(v, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative values are returned as-is so "0s" can disable a feature.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate checks cross-field constraints. RequestTimeout is raised above the
// slowest upstream timeout so handlers do not cut off a fetch the client would finish.
func validate(cfg *Config) error {
	if cfg.OpenMeteoTimeout <= 0 {
		return fmt.Errorf("open_meteo.timeout must be positive")
	}
	slowest := max(cfg.OpenMeteoTimeout, cfg.PredictionTimeout)
	if cfg.RequestTimeout <= slowest {
		cfg.RequestTimeout = slowest + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.StaleTTL < 0 {
		cfg.StaleTTL = 0
	}
	for _, days := range []struct {
		name     string
		v, limit int
	}{
		{"dashboard.forecast_days", cfg.ForecastDays, 16},
		{"dashboard.prediction_days", cfg.PredictionDays, 14},
	} {
		if days.v > days.limit {
			return fmt.Errorf("%s must be at most %d, got %d", days.name, days.limit, days.v)
		}
	}
	return nil
}
