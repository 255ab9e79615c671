package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kjstillabower/nostradamus/internal/models"
	"github.com/kjstillabower/nostradamus/internal/observability"
)

type mockWarmer struct {
	calls int32
	err   error
	seen  []models.Location
}

func (m *mockWarmer) Warm(ctx context.Context, locations []models.Location) error {
	atomic.AddInt32(&m.calls, 1)
	m.seen = locations
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("warm called without deadline")
	}
	return m.err
}

type mockSweeper struct{ calls int32 }

func (m *mockSweeper) Sweep() int {
	atomic.AddInt32(&m.calls, 1)
	return 0
}

var locations = []models.Location{{Name: "Warsaw", Lat: 52.2297, Lon: 21.0122}}

// TestScheduler_runWarm verifies that warm runs use the configured locations and
// record their outcome.
func TestScheduler_runWarm(t *testing.T) {
	w := &mockWarmer{}
	s := New(Config{Locations: locations}, w, nil, nil)
	okBefore := testutil.ToFloat64(observability.ScheduledJobRunsTotal.WithLabelValues(jobWarm, "success"))
	errBefore := testutil.ToFloat64(observability.ScheduledJobRunsTotal.WithLabelValues(jobWarm, "error"))

	s.runWarm()
	if len(w.seen) != 1 || w.seen[0].Name != "Warsaw" {
		t.Errorf("warmed %v, want Warsaw", w.seen)
	}
	w.err = errors.New("upstream down")
	s.runWarm()

	if got := testutil.ToFloat64(observability.ScheduledJobRunsTotal.WithLabelValues(jobWarm, "success")) - okBefore; got != 1 {
		t.Errorf("success runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(observability.ScheduledJobRunsTotal.WithLabelValues(jobWarm, "error")) - errBefore; got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}

// TestScheduler_Start verifies that enabled jobs run immediately on start.
func TestScheduler_Start(t *testing.T) {
	w := &mockWarmer{}
	sw := &mockSweeper{}
	s := New(Config{WarmInterval: time.Hour, SweepInterval: time.Hour, Locations: locations}, w, sw, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&w.calls) > 0 && atomic.LoadInt32(&sw.calls) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("jobs did not run: warm=%d sweep=%d", atomic.LoadInt32(&w.calls), atomic.LoadInt32(&sw.calls))
}

// TestScheduler_Start_NoJobs verifies that a scheduler with nothing enabled starts and stops cleanly.
func TestScheduler_Start_NoJobs(t *testing.T) {
	s := New(Config{WarmInterval: time.Hour}, &mockWarmer{}, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
}
