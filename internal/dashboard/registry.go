package dashboard

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/nostradamus/internal/observability"
)

// ErrNotFound is returned for an unknown or evicted session id.
var ErrNotFound = errors.New("dashboard not found")

// Registry holds live dashboard sessions keyed by id. Sessions idle longer than
// the TTL are removed by Sweep.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	fetcher  Fetcher
	cfg      Config
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

type session struct {
	ctrl     *Controller
	lastUsed time.Time
}

// NewRegistry creates an empty registry. Controllers it creates share fetcher and cfg.
func NewRegistry(fetcher Fetcher, cfg Config, ttl time.Duration, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*session),
		fetcher:  fetcher,
		cfg:      cfg,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers a new empty dashboard and returns its id.
func (r *Registry) Create() (string, *Controller) {
	id := uuid.NewString()
	ctrl := NewController(r.fetcher, r.cfg, r.logger.With(zap.String("dashboard_id", id)))
	ctrl.now = r.now

	r.mu.Lock()
	r.sessions[id] = &session{ctrl: ctrl, lastUsed: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()

	observability.DashboardSessions.Set(float64(n))
	return id, ctrl
}

// Get returns the dashboard for id and marks it used.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.lastUsed = r.now()
	return s.ctrl, nil
}

// Delete removes the dashboard for id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	observability.DashboardSessions.Set(float64(n))
	return nil
}

// Sweep removes sessions idle for longer than the TTL and returns how many it removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	removed := 0
	for id, s := range r.sessions {
		if s.lastUsed.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	observability.DashboardSessions.Set(float64(n))
	if removed > 0 {
		r.logger.Info("swept idle dashboards", zap.Int("removed", removed), zap.Int("remaining", n))
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
