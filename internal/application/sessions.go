package application

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/output"
)

// SessionOptions configures new sessions.
type SessionOptions struct {
	MaxSessions int                   // 0 means unlimited
	Filters     domain.CategoryFilter // Initial category filter
	Kinds       domain.GeometryKinds  // Initial geometry kinds
}

// SessionManager keeps the live sessions in memory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	builder  output.QueryBuilder
	source   output.FeatureSource
	exporter *Exporter
	metrics  output.MetricsCollector
	logger   *slog.Logger
	opts     SessionOptions
}

// NewSessionManager creates a new session manager.
func NewSessionManager(
	builder output.QueryBuilder,
	source output.FeatureSource,
	exporter *Exporter,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	opts SessionOptions,
) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		builder:  builder,
		source:   source,
		exporter: exporter,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// Create starts a new session with a generated id.
func (m *SessionManager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(uuid.NewString())
}

// Ensure returns the session with the given id, creating it if needed.
func (m *SessionManager) Ensure(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return m.create(id)
}

// create must be called with m.mu held.
func (m *SessionManager) create(id string) (*Session, error) {
	if m.opts.MaxSessions > 0 && len(m.sessions) >= m.opts.MaxSessions {
		return nil, domain.ErrTooManySessions
	}

	s := NewSession(id, m.builder, m.source, m.exporter, m.metrics, m.logger)
	kinds := m.opts.Kinds
	if !kinds.Points && !kinds.Lines && !kinds.Polygons {
		kinds = domain.AllGeometryKinds()
	}
	s.SetFilters(m.opts.Filters, kinds)

	m.sessions[id] = s
	m.metrics.SetActiveSessions(len(m.sessions))
	m.logger.Info("session created", "session", id, "total", len(m.sessions))
	return s, nil
}

// Get returns a session by id.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session and cancels its in-flight fetch.
func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}

	s.Close()
	m.metrics.SetActiveSessions(total)
	m.logger.Info("session deleted", "session", id, "total", total)
	return nil
}

// List returns snapshots of all sessions, oldest first.
func (m *SessionManager) List() []SessionSnapshot {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	snaps := make([]SessionSnapshot, len(sessions))
	for i, s := range sessions {
		snaps[i] = s.Snapshot()
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// Count returns the number of sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CountLoading returns the number of sessions with a fetch in flight.
func (m *SessionManager) CountLoading() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, s := range m.sessions {
		if s.State() == domain.StateLoading {
			n++
		}
	}
	return n
}

// MaxSessions returns the session limit, 0 if unlimited.
func (m *SessionManager) MaxSessions() int {
	return m.opts.MaxSessions
}

// Reap removes sessions idle for longer than ttl. Sessions with a fetch in
// flight are kept. It returns the number of removed sessions.
func (m *SessionManager) Reap(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	m.mu.Lock()
	var reaped []*Session
	for id, s := range m.sessions {
		if s.expired(cutoff) {
			delete(m.sessions, id)
			reaped = append(reaped, s)
		}
	}
	total := len(m.sessions)
	m.mu.Unlock()

	for _, s := range reaped {
		s.Close()
		m.logger.Info("session expired", "session", s.ID(), "idle", time.Since(s.LastActive()).Round(time.Second))
	}
	if len(reaped) > 0 {
		m.metrics.SetActiveSessions(total)
	}
	return len(reaped)
}
