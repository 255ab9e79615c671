package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// Prefetcher loads the payloads a dashboard needs for a location into the cache.
// Implemented by the service layer so this package does not import it.
type Prefetcher interface {
	Prefetch(ctx context.Context, loc models.Location) error
}

// CacheWarmer keeps tracked locations warm so the first dashboard load is a hit.
type CacheWarmer struct {
	fetcher Prefetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher Prefetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm prefetches every location concurrently and joins the failures.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.Location) error {
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.Location) {
			defer wg.Done()
			if err := w.fetcher.Prefetch(ctx, loc); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc.Name, err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", time.Since(start).Seconds()))
	if len(errs) > 0 {
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
