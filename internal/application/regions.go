// Package application contains the application services.
package application

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jobrunner/osmclip/internal/domain"
)

// RegionEventKind identifies a region change.
type RegionEventKind int

// Region event kinds.
const (
	RegionSet RegionEventKind = iota + 1
	RegionCleared
)

// String returns the string representation of the event kind.
func (k RegionEventKind) String() string {
	switch k {
	case RegionSet:
		return "set"
	case RegionCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// RegionEvent is emitted whenever the active region changes.
type RegionEvent struct {
	Kind    RegionEventKind
	Region  domain.Region // Zero for RegionCleared
	Version uint64        // Strictly increasing per store
}

// RegionListener receives region events.
type RegionListener func(RegionEvent)

// RegionStore holds at most one active region and the drawing sub-state.
// Listeners are invoked synchronously, in subscription order, before the
// mutating call returns. They must not call back into the store.
type RegionStore struct {
	mu        sync.Mutex
	active    *domain.Region
	drawing   bool
	version   uint64
	listeners []RegionListener
	newID     func() string
	logger    *slog.Logger
}

// NewRegionStore creates an empty region store.
func NewRegionStore(logger *slog.Logger) *RegionStore {
	return &RegionStore{
		newID:  uuid.NewString,
		logger: logger,
	}
}

// Subscribe registers a listener for region events.
func (s *RegionStore) Subscribe(l RegionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// StartDrawing discards the active region and enters drawing mode.
func (s *RegionStore) StartDrawing() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drawing {
		return
	}
	s.drawing = true
	if s.active != nil {
		s.active = nil
		s.emit(RegionEvent{Kind: RegionCleared})
	}
}

// FinishDrawing sets the active region from a completed shape. On invalid
// geometry the store is left unchanged.
func (s *RegionStore) FinishDrawing(points []domain.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	region, err := domain.NewRegion(s.newID(), points)
	if err != nil {
		return err
	}

	s.active = &region
	s.drawing = false
	s.emit(RegionEvent{Kind: RegionSet, Region: region.Clone()})

	s.logger.Debug("region set", "region", region.ID, "points", region.Len())
	return nil
}

// EditActiveRegion replaces the vertices of the active region, keeping its identity.
func (s *RegionStore) EditActiveRegion(points []domain.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return domain.ErrNoRegion
	}

	region, err := domain.NewRegion(s.active.ID, points)
	if err != nil {
		return err
	}

	s.active = &region
	s.emit(RegionEvent{Kind: RegionSet, Region: region.Clone()})

	s.logger.Debug("region edited", "region", region.ID, "points", region.Len())
	return nil
}

// Clear removes the active region and leaves drawing mode. It is idempotent.
func (s *RegionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drawing = false
	if s.active == nil {
		return
	}
	s.active = nil
	s.emit(RegionEvent{Kind: RegionCleared})
}

// Active returns a copy of the active region.
func (s *RegionStore) Active() (domain.Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return domain.Region{}, false
	}
	return s.active.Clone(), true
}

// Drawing returns true while a shape is being drawn.
func (s *RegionStore) Drawing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawing
}

// emit must be called with s.mu held.
func (s *RegionStore) emit(ev RegionEvent) {
	s.version++
	ev.Version = s.version
	for _, l := range s.listeners {
		l(ev)
	}
}
