package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
	"github.com/kjstillabower/nostradamus/internal/timeseries"
)

// comparisonOffsets are how far back the history comparison looks, in days.
var comparisonOffsets = [2]int{365, 365 * 10}

type loadResult struct {
	history    models.WeatherPayload
	forecast   models.WeatherPayload
	comparison models.HistoryComparison
}

// SetLocation switches the dashboard to loc and loads its history and forecast.
// Any prediction from the previous location is dropped. If another load starts
// before this one finishes, this one's result is discarded and ErrStaleResult
// is returned. On fetch failure the error is recorded in the state and the
// previous series stay in place.
//
// The history window ends the day before today at the location. On the first
// load of a location its UTC offset is not known yet, so today is the UTC date;
// east of UTC+12 that can leave a one-day gap before the forecast until the
// next Refresh.
func (c *Controller) SetLocation(ctx context.Context, loc models.Location) error {
	c.mu.Lock()
	c.state.Generation++
	gen := c.state.Generation
	c.state.Location = loc
	c.state.Loading = true
	c.state.Predicting = false
	c.state.LastError = ""
	now := c.now()
	offset := 0
	if c.series > 0 && c.seriesLoc == loc {
		offset = c.state.UTCOffsetSeconds
	}
	c.mu.Unlock()

	observability.RecordLocationQuery(loc.Name)
	today := timeseries.CivilDate(timeseries.WallClock(now, offset))
	res, err := c.fetchLocation(ctx, loc, now, today)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Generation != gen || c.state.Location != loc {
		c.discard(ctx, "location", gen)
		return ErrStaleResult
	}
	c.state.Loading = false
	c.state.UpdatedAt = c.now()
	if err != nil {
		c.state.LastError = fmt.Sprintf("failed to load weather data: %v", err)
		observability.LoggerFromContext(ctx, c.logger).Warn("location load failed",
			zap.String("location", loc.Name), zap.Error(err))
		return err
	}
	c.apply(ctx, res)
	c.series++
	c.seriesLoc = loc
	return nil
}

// Refresh reloads the current location.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	loc := c.state.Location
	loaded := c.state.Generation > 0
	c.mu.Unlock()
	if !loaded {
		return ErrNoLocation
	}
	return c.SetLocation(ctx, loc)
}

// fetchLocation runs the history and forecast fetches concurrently and joins
// them; either failing fails the load. The history comparison fetches run
// alongside but their failures only leave the comparison empty.
func (c *Controller) fetchLocation(ctx context.Context, loc models.Location, now, today time.Time) (loadResult, error) {
	var res loadResult
	logger := observability.LoggerFromContext(ctx, c.logger)
	start := timeseries.FormatDate(today.AddDate(0, 0, -c.cfg.HistoryDays))
	end := timeseries.FormatDate(today.AddDate(0, 0, -1))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := c.fetcher.History(gctx, loc.Lat, loc.Lon, start, end)
		res.history = p
		return err
	})
	g.Go(func() error {
		p, err := c.fetcher.Forecast(gctx, loc.Lat, loc.Lon, c.cfg.ForecastDays)
		res.forecast = p
		return err
	})
	var comparison [2]*float64
	for i, days := range comparisonOffsets {
		g.Go(func() error {
			temp, err := c.sameHourAgo(gctx, loc, now, days)
			if err != nil {
				logger.Debug("history comparison unavailable", zap.Int("days_back", days), zap.Error(err))
				return nil
			}
			comparison[i] = temp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return loadResult{}, err
	}
	res.comparison = models.HistoryComparison{YearAgo: comparison[0], DecadeAgo: comparison[1]}
	return res, nil
}

// sameHourAgo returns the temperature daysBack days ago at the current local hour.
func (c *Controller) sameHourAgo(ctx context.Context, loc models.Location, now time.Time, daysBack int) (*float64, error) {
	day := timeseries.FormatDate(timeseries.CivilDate(now.UTC()).AddDate(0, 0, -daysBack))
	p, err := c.fetcher.History(ctx, loc.Lat, loc.Lon, day, day)
	if err != nil {
		return nil, err
	}
	hour := timeseries.WallClock(now, p.UTCOffsetSeconds).Hour()
	for _, r := range p.Hourly {
		t, err := timeseries.ParseTime(r.Time)
		if err != nil {
			continue
		}
		if t.Hour() == hour {
			return r.Temperature, nil
		}
	}
	return nil, nil
}

// apply merges a completed load into the state. Caller holds mu.
func (c *Controller) apply(ctx context.Context, res loadResult) {
	unified, hourlyReport := timeseries.MergeHourly(res.history.Hourly, res.forecast.Hourly, nil)
	daily, dailyReport := timeseries.MergeDaily(res.history.Daily, res.forecast.Daily)
	hourlyReport.Merge(dailyReport)
	c.reportSkips(ctx, hourlyReport)

	offset, tz := res.forecast.UTCOffsetSeconds, res.forecast.Timezone
	if tz == "" && res.history.Timezone != "" {
		offset, tz = res.history.UTCOffsetSeconds, res.history.Timezone
	}

	c.state.Unified = unified
	c.state.Daily = daily
	c.state.UTCOffsetSeconds = offset
	c.state.Timezone = tz
	c.state.CarouselOffset = 0
	c.state.ModelPerformance = nil
	c.state.HistoryComparison = res.comparison
	c.state.Stale = res.history.Stale || res.forecast.Stale

	c.state.SelectedDate = ""
	if today := timeseries.FormatDate(c.today()); len(daily) > 0 {
		if _, ok := daily.Find(today); ok {
			c.state.SelectedDate = today
		}
	}
}

// Predict fetches a prediction run for the current location and aligns it onto
// the unified series. It fails with ErrStaleResult while the series on display
// belong to another location (a load is in flight or the last one failed). The
// result is discarded with ErrStaleResult if a location load or another Predict
// started meanwhile.
func (c *Controller) Predict(ctx context.Context) error {
	c.mu.Lock()
	if c.series == 0 {
		c.mu.Unlock()
		return ErrNoLocation
	}
	if c.state.Loading || c.seriesLoc != c.state.Location {
		loading := c.state.Location.Name
		c.mu.Unlock()
		return fmt.Errorf("%w: series not loaded for %s", ErrStaleResult, loading)
	}
	gen, series := c.state.Generation, c.series
	loc := c.state.Location
	c.predictRun++
	run := c.predictRun
	c.state.Predicting = true
	c.state.ModelPerformance = nil
	c.state.LastError = ""
	c.mu.Unlock()

	payload, err := c.fetcher.Prediction(ctx, loc.Lat, loc.Lon, c.cfg.PredictionDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Generation != gen || c.series != series || c.seriesLoc != loc || c.predictRun != run {
		c.discard(ctx, "prediction", gen)
		return ErrStaleResult
	}
	c.state.Predicting = false
	c.state.UpdatedAt = c.now()
	if err != nil {
		c.state.LastError = fmt.Sprintf("prediction failed: %v", err)
		observability.LoggerFromContext(ctx, c.logger).Warn("prediction failed",
			zap.String("location", loc.Name), zap.Error(err))
		return err
	}

	unified, report := timeseries.AttachPrediction(c.state.Unified, payload.Prediction)
	c.reportSkips(ctx, report)
	if report.Unmatched > 0 {
		observability.LoggerFromContext(ctx, c.logger).Debug("prediction slots outside series",
			zap.Int("unmatched", report.Unmatched))
	}
	c.state.Unified = unified
	c.state.ModelPerformance = payload.ModelPerformance
	return nil
}

// discard logs and counts a result dropped for belonging to an older load. Caller holds mu.
func (c *Controller) discard(ctx context.Context, operation string, gen uint64) {
	observability.StaleResultsDiscardedTotal.WithLabelValues(operation).Inc()
	observability.LoggerFromContext(ctx, c.logger).Info("discarding stale result",
		zap.String("operation", operation),
		zap.Uint64("generation", gen),
		zap.Uint64("current_generation", c.state.Generation))
}

func (c *Controller) reportSkips(ctx context.Context, r timeseries.Report) {
	if len(r.Skipped) == 0 {
		return
	}
	logger := observability.LoggerFromContext(ctx, c.logger)
	for _, s := range r.Skipped {
		observability.SkippedRecordsTotal.WithLabelValues(string(s.Source)).Inc()
		logger.Warn("skipping record with unparseable timestamp",
			zap.String("source", string(s.Source)),
			zap.Int("index", s.Index),
			zap.String("raw", s.Raw))
	}
}
