package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBuilder implements output.QueryBuilder for testing.
type mockBuilder struct {
	mu    sync.Mutex
	calls []domain.CategoryFilter
}

func (m *mockBuilder) Build(region domain.Region, filters domain.CategoryFilter) domain.ExtractionQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, filters)
	return domain.ExtractionQuery(fmt.Sprintf("region=%s keys=%s", region.ID, strings.Join(filters.Keys(), ",")))
}

func (m *mockBuilder) lastFilters() domain.CategoryFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return domain.CategoryFilter{}
	}
	return m.calls[len(m.calls)-1]
}

// mockSource implements output.FeatureSource for testing. When gate is set,
// Fetch signals started and blocks until gate is closed or ctx is done.
type mockSource struct {
	mu       sync.Mutex
	features []domain.Feature
	err      error
	calls    int
	queries  []domain.ExtractionQuery
	started  chan struct{}
	gate     chan struct{}
}

func (m *mockSource) Fetch(ctx context.Context, query domain.ExtractionQuery) (*domain.FeatureCollection, error) {
	m.mu.Lock()
	m.calls++
	m.queries = append(m.queries, query)
	features, err := m.features, m.err
	started, gate := m.started, m.gate
	m.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &domain.TransportError{Message: "calling overpass", Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]domain.Feature, len(features))
	copy(out, features)
	return domain.NewFeatureCollection(out), nil
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockSource) set(features []domain.Feature, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features, m.err = features, err
}

// mockEncoder implements output.FeatureEncoder for testing.
type mockEncoder struct {
	format string
	err    error
}

func (m *mockEncoder) Encode(_ context.Context, fc *domain.FeatureCollection) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]string, 0, fc.Len())
	for _, f := range fc.Features {
		ids = append(ids, f.ID)
	}
	return []byte(strings.Join(ids, "\n")), nil
}

func (m *mockEncoder) Format() string      { return m.format }
func (m *mockEncoder) Extension() string   { return "." + m.format }
func (m *mockEncoder) ContentType() string { return "application/x-" + m.format }

// mockSink implements output.FileSink for testing.
type mockSink struct {
	mu    sync.Mutex
	files []output.ExportFile
	err   error
}

func (m *mockSink) Save(_ context.Context, file output.ExportFile) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.files = append(m.files, file)
	return "mem://" + file.Name, nil
}

func (m *mockSink) saved() []output.ExportFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]output.ExportFile, len(m.files))
	copy(out, m.files)
	return out
}

// mockMetrics implements output.MetricsCollector for testing.
type mockMetrics struct {
	output.NoOpMetrics
	mu          sync.Mutex
	extractions map[string]int
	exports     map[bool]int
	sessions    int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		extractions: make(map[string]int),
		exports:     make(map[bool]int),
	}
}

func (m *mockMetrics) IncExtractions(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractions[outcome]++
}

func (m *mockMetrics) IncExports(_ string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[success]++
}

func (m *mockMetrics) SetActiveSessions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = count
}

func (m *mockMetrics) extractionCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extractions[outcome]
}

func testFeatures(n int) []domain.Feature {
	features := make([]domain.Feature, n)
	for i := range features {
		features[i] = domain.Feature{
			ID:       fmt.Sprintf("node/%d", i+1),
			Geometry: orb.Point{46.6 + float64(i)/1000, 24.7},
			Tags:     map[string]string{"amenity": "cafe"},
		}
	}
	return features
}

func square() []domain.Coordinate {
	return []domain.Coordinate{
		{Lat: 24.7, Lon: 46.6},
		{Lat: 24.7, Lon: 46.7},
		{Lat: 24.8, Lon: 46.7},
		{Lat: 24.8, Lon: 46.6},
	}
}

func triangle() []domain.Coordinate {
	return []domain.Coordinate{
		{Lat: 24.7, Lon: 46.6},
		{Lat: 24.7, Lon: 46.7},
		{Lat: 24.8, Lon: 46.7},
	}
}

type testEnv struct {
	builder *mockBuilder
	source  *mockSource
	sink    *mockSink
	metrics *mockMetrics
	session *Session
}

func newTestExporter(sink output.FileSink, metrics output.MetricsCollector) *Exporter {
	e, err := NewExporter(sink, ExportOptions{Format: "geojson"}, metrics, testLogger(),
		&mockEncoder{format: "geojson"}, &mockEncoder{format: "gpkg"})
	if err != nil {
		panic(err)
	}
	e.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return e
}

func newTestEnv() *testEnv {
	env := &testEnv{
		builder: &mockBuilder{},
		source:  &mockSource{},
		sink:    &mockSink{},
		metrics: newMockMetrics(),
	}
	env.session = NewSession("s1", env.builder, env.source,
		newTestExporter(env.sink, env.metrics), env.metrics, testLogger())
	return env
}
