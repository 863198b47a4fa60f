package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/output"
)

// Extraction outcomes reported to metrics.
const (
	outcomeSuccess   = "success"
	outcomeEmpty     = "empty"
	outcomeError     = "error"
	outcomeDiscarded = "discarded"
	outcomeRejected  = "rejected"
)

// SessionSnapshot is a point-in-time view of a session.
type SessionSnapshot struct {
	ID         string
	State      domain.SessionState
	Drawing    bool
	Region     *domain.Region
	Filters    []string
	Kinds      domain.GeometryKinds
	Features   int
	Empty      bool
	Counts     map[string]int
	Error      string
	CreatedAt  time.Time
	LastActive time.Time
}

// Session couples a region store with the extraction lifecycle of one user.
// At most one fetch is in flight per session.
type Session struct {
	id       string
	regions  *RegionStore
	builder  output.QueryBuilder
	source   output.FeatureSource
	exporter *Exporter
	metrics  output.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      domain.SessionState
	region     *domain.Region
	version    uint64
	filters    domain.CategoryFilter
	kinds      domain.GeometryKinds
	result     *domain.FeatureCollection
	failure    error
	cancel     context.CancelFunc
	createdAt  time.Time
	lastActive time.Time
}

// NewSession creates an idle session subscribed to its own region store.
func NewSession(
	id string,
	builder output.QueryBuilder,
	source output.FeatureSource,
	exporter *Exporter,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *Session {
	logger = logger.With("session", id)
	now := time.Now()

	s := &Session{
		id:         id,
		regions:    NewRegionStore(logger),
		builder:    builder,
		source:     source,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		state:      domain.StateIdle,
		kinds:      domain.AllGeometryKinds(),
		createdAt:  now,
		lastActive: now,
	}
	s.regions.Subscribe(s.HandleRegionEvent)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Regions returns the region store of the session.
func (s *Session) Regions() *RegionStore {
	return s.regions
}

// StartDrawing implements input.RegionInput.
func (s *Session) StartDrawing() {
	s.touch()
	s.regions.StartDrawing()
}

// FinishDrawing implements input.RegionInput.
func (s *Session) FinishDrawing(points []domain.Coordinate) error {
	s.touch()
	return s.regions.FinishDrawing(points)
}

// EditActiveRegion implements input.RegionInput.
func (s *Session) EditActiveRegion(points []domain.Coordinate) error {
	s.touch()
	return s.regions.EditActiveRegion(points)
}

// Clear implements input.RegionInput.
func (s *Session) Clear() {
	s.touch()
	s.regions.Clear()
}

// HandleRegionEvent reacts to a region change. Outside Loading the held result
// is discarded at once. During Loading the in-flight fetch is cancelled and its
// outcome discarded when it resolves.
func (s *Session) HandleRegionEvent(ev RegionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version = ev.Version
	switch ev.Kind {
	case RegionSet:
		r := ev.Region
		s.region = &r
	case RegionCleared:
		s.region = nil
	}
	s.metrics.IncRegionEvents(ev.Kind.String())

	if s.state == domain.StateLoading {
		if s.cancel != nil {
			s.cancel()
		}
		s.logger.Debug("region changed during extraction, cancelling", "version", ev.Version)
		return
	}

	s.result = nil
	s.failure = nil
	s.state = s.idleState()
}

// SetFilters replaces the category filter and geometry kinds used by the next
// extraction. A held result is kept.
func (s *Session) SetFilters(filters domain.CategoryFilter, kinds domain.GeometryKinds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = filters
	s.kinds = kinds
	s.lastActive = s.now()
}

// RequestExtraction implements input.ExtractionController. When a result is
// held it is exported instead of fetched again.
func (s *Session) RequestExtraction(ctx context.Context) (domain.Outcome, error) {
	s.mu.Lock()
	s.lastActive = s.now()

	switch s.state {
	case domain.StateIdle:
		s.mu.Unlock()
		s.metrics.IncExtractions(outcomeRejected)
		return domain.Outcome{State: domain.StateIdle}, domain.ErrNoRegion
	case domain.StateLoading:
		s.mu.Unlock()
		s.metrics.IncExtractions(outcomeRejected)
		return domain.Outcome{State: domain.StateLoading}, domain.ErrAlreadyInProgress
	case domain.StateReady:
		result := s.result
		s.mu.Unlock()
		return s.exportHeld(ctx, result)
	}

	region := s.region.Clone()
	version := s.version
	filters, kinds := s.filters, s.kinds

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.state = domain.StateLoading
	s.failure = nil
	s.mu.Unlock()

	s.logger.Info("extraction started",
		"region", region.ID,
		"points", region.Len(),
		"categories", filters.String(),
	)

	query := s.builder.Build(region, filters)
	start := time.Now()
	fc, err := s.source.Fetch(fetchCtx, query)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	s.lastActive = s.now()

	if s.version != version {
		s.result = nil
		s.failure = nil
		s.state = s.idleState()
		s.metrics.IncExtractions(outcomeDiscarded)
		s.logger.Info("extraction discarded, region changed", "duration", elapsed)
		return domain.Outcome{State: s.state}, domain.ErrRegionChanged
	}

	s.metrics.ObserveExtractionDuration(elapsed)

	if err != nil {
		s.state = domain.StateFailed
		s.failure = err
		s.metrics.IncExtractions(outcomeError)
		s.logger.Warn("extraction failed", "error", err, "duration", elapsed)
		return domain.Outcome{State: domain.StateFailed}, fmt.Errorf("fetching features: %w", err)
	}

	fc = fc.Filter(kinds)
	s.result = fc
	s.state = domain.StateReady

	outcome := outcomeSuccess
	if fc.IsEmpty() {
		outcome = outcomeEmpty
	}
	s.metrics.IncExtractions(outcome)
	s.metrics.ObserveFeatureCount(fc.Len())
	s.logger.Info("extraction completed", "features", fc.Len(), "duration", elapsed)

	return domain.Outcome{
		State:    domain.StateReady,
		Features: fc.Len(),
		Empty:    fc.IsEmpty(),
	}, nil
}

// exportHeld exports a held result under a generated name.
func (s *Session) exportHeld(ctx context.Context, result *domain.FeatureCollection) (domain.Outcome, error) {
	outcome := domain.Outcome{
		State:    domain.StateReady,
		Features: result.Len(),
		Empty:    result.IsEmpty(),
	}
	artifact, err := s.exporter.Export(ctx, result, "")
	if err != nil {
		return outcome, fmt.Errorf("exporting result: %w", err)
	}
	outcome.Export = artifact
	return outcome, nil
}

// RequestExport implements input.ExtractionController.
func (s *Session) RequestExport(ctx context.Context, name string) (*domain.ExportArtifact, error) {
	return s.RequestExportAs(ctx, name, "")
}

// RequestExportAs exports the held result in the given format. An empty
// format selects the exporter default.
func (s *Session) RequestExportAs(ctx context.Context, name, format string) (*domain.ExportArtifact, error) {
	result, err := s.Result()
	if err != nil {
		return nil, err
	}
	if format == "" {
		return s.exporter.Export(ctx, result, name)
	}
	return s.exporter.ExportAs(ctx, result, name, format)
}

// Result returns the held collection. It fails with ErrNoResult outside Ready.
func (s *Session) Result() (*domain.FeatureCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()

	if s.state != domain.StateReady {
		return nil, domain.ErrNoResult
	}
	return s.result, nil
}

// State returns the current lifecycle state.
func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the cause of the last failed extraction.
func (s *Session) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// LastActive returns the time of the last interaction.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() SessionSnapshot {
	drawing := s.regions.Drawing()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		ID:         s.id,
		State:      s.state,
		Drawing:    drawing,
		Filters:    s.filters.Keys(),
		Kinds:      s.kinds,
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}
	if s.region != nil {
		r := s.region.Clone()
		snap.Region = &r
	}
	if s.state == domain.StateReady {
		snap.Features = s.result.Len()
		snap.Empty = s.result.IsEmpty()
		snap.Counts = s.result.CountByGeometry()
	}
	if s.failure != nil {
		snap.Error = s.failure.Error()
	}
	return snap
}

// Close cancels an in-flight fetch.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// expired reports whether the session has no fetch in flight and has been
// inactive since cutoff. Both are read under one lock so a fetch starting
// concurrently is never mistaken for idleness.
func (s *Session) expired(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != domain.StateLoading && s.lastActive.Before(cutoff)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// idleState must be called with s.mu held.
func (s *Session) idleState() domain.SessionState {
	if s.region != nil {
		return domain.StateAwaitingRegion
	}
	return domain.StateIdle
}
