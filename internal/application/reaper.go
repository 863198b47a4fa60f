package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReapResult contains the result of a reap run.
type ReapResult struct {
	SessionsRemoved int       `json:"sessions_removed"`
	SessionsTotal   int       `json:"sessions_total"`
	ReapedAt        time.Time `json:"reaped_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// Reaper periodically removes idle sessions.
type Reaper struct {
	sessions *SessionManager
	interval time.Duration
	ttl      time.Duration
	logger   *slog.Logger

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Prevents concurrent reap runs
	runMu sync.Mutex

	nextRun time.Time
	last    ReapResult
	stateMu sync.RWMutex
}

// NewReaper creates a new idle session reaper.
func NewReaper(sessions *SessionManager, interval, ttl time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		sessions: sessions,
		interval: interval,
		ttl:      ttl,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic reap loop.
func (r *Reaper) Start(ctx context.Context) {
	r.logger.Info("starting session reaper", "interval", r.interval, "ttl", r.ttl)

	r.wg.Add(1)
	go r.run(ctx)
}

// run is the main reap loop.
func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.setNextRun(time.Now().Add(r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session reaper stopped: context canceled")
			return
		case <-r.stopCh:
			r.logger.Info("session reaper stopped")
			return
		case <-ticker.C:
			r.RunOnce()
			r.setNextRun(time.Now().Add(r.interval))
		}
	}
}

// Stop gracefully stops the reaper. It is safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("stopping session reaper")
		close(r.stopCh)
	})
	r.wg.Wait()
}

// RunOnce removes expired sessions immediately.
func (r *Reaper) RunOnce() ReapResult {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	removed := r.sessions.Reap(r.ttl)
	result := ReapResult{
		SessionsRemoved: removed,
		SessionsTotal:   r.sessions.Count(),
		ReapedAt:        time.Now(),
		NextScheduledAt: r.getNextRun(),
	}
	if removed > 0 {
		r.logger.Info("idle sessions reaped", "removed", removed, "total", result.SessionsTotal)
	} else {
		r.logger.Debug("no idle sessions to reap", "total", result.SessionsTotal)
	}

	r.stateMu.Lock()
	r.last = result
	r.stateMu.Unlock()

	return result
}

// LastResult returns the result of the most recent run.
func (r *Reaper) LastResult() ReapResult {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.last
}

func (r *Reaper) setNextRun(t time.Time) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.nextRun = t
}

func (r *Reaper) getNextRun() time.Time {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.nextRun
}

// Interval returns the reap interval.
func (r *Reaper) Interval() time.Duration {
	return r.interval
}

// TTL returns the idle time after which a session is removed.
func (r *Reaper) TTL() time.Duration {
	return r.ttl
}
