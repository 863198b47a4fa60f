package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jobrunner/osmclip/internal/adapters/geojson"
	"github.com/jobrunner/osmclip/internal/application"
	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/input"
)

// SessionResolver returns the session fed by the watcher, creating it on demand.
type SessionResolver interface {
	Ensure(id string) (*application.Session, error)
}

// RegionFeeder translates region file events into region input:
// a new file finishes a drawing, a modified file edits the active region and
// removing the file that defined the active region clears it.
type RegionFeeder struct {
	sessions  SessionResolver
	sessionID string
	logger    *slog.Logger

	mu     sync.Mutex
	source string // file that set the active region
}

// NewRegionFeeder creates a feeder for the given session id.
func NewRegionFeeder(sessions SessionResolver, sessionID string, logger *slog.Logger) *RegionFeeder {
	return &RegionFeeder{
		sessions:  sessions,
		sessionID: sessionID,
		logger:    logger.With("session", sessionID),
	}
}

// Handle implements Handler.
func (f *RegionFeeder) Handle(_ context.Context, event Event) error {
	session, err := f.sessions.Ensure(f.sessionID)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch event.Operation {
	case OpCreate, OpModify:
		return f.apply(session, event)

	case OpDelete:
		if event.Path != f.source {
			f.logger.Debug("ignoring removal of inactive region file", "path", event.Path)
			return nil
		}
		session.Clear()
		f.source = ""
		f.logger.Info("region cleared", "path", event.Path)
	}

	return nil
}

// apply must be called with f.mu held.
func (f *RegionFeeder) apply(region input.RegionInput, event Event) error {
	data, err := os.ReadFile(event.Path)
	if err != nil {
		return fmt.Errorf("reading region file: %w", err)
	}
	points, err := geojson.DecodeRegion(data)
	if err != nil {
		return fmt.Errorf("decoding region file %s: %w", event.Path, err)
	}

	// A modification of the file that owns the active region is an edit;
	// anything else replaces the region.
	if event.Operation == OpModify && event.Path == f.source {
		err = region.EditActiveRegion(points)
		if errors.Is(err, domain.ErrNoRegion) {
			err = region.FinishDrawing(points)
		}
	} else {
		err = region.FinishDrawing(points)
	}
	if err != nil {
		return err
	}

	f.source = event.Path
	f.logger.Info("region updated from file",
		"path", event.Path,
		"operation", event.Operation.String(),
		"points", len(points),
	)
	return nil
}

// Source returns the file that defined the active region, if any.
func (f *RegionFeeder) Source() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}
