package http

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/osmclip/internal/adapters/geojson"
	"github.com/jobrunner/osmclip/internal/adapters/overpass"
	"github.com/jobrunner/osmclip/internal/adapters/storage"
	"github.com/jobrunner/osmclip/internal/application"
	"github.com/jobrunner/osmclip/internal/config"
	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/output"
)

// mockSource implements output.FeatureSource for testing.
type mockSource struct {
	mu       sync.Mutex
	features []domain.Feature
	err      error
	queries  []domain.ExtractionQuery
}

func (m *mockSource) Fetch(_ context.Context, query domain.ExtractionQuery) (*domain.FeatureCollection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	return domain.NewFeatureCollection(append([]domain.Feature(nil), m.features...)), nil
}

func (m *mockSource) lastQuery() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queries) == 0 {
		return ""
	}
	return m.queries[len(m.queries)-1].String()
}

type testEnv struct {
	server   *Server
	sessions *application.SessionManager
	source   *mockSource
	exportTo string
}

func sampleFeatures() []domain.Feature {
	return []domain.Feature{
		{ID: "node/1", Geometry: orb.Point{46.65, 24.75}, Tags: map[string]string{"amenity": "cafe"}},
		{ID: "way/2", Geometry: orb.LineString{{46.61, 24.71}, {46.69, 24.79}}, Tags: map[string]string{"highway": "primary"}},
		{ID: "way/3", Geometry: orb.Polygon{{{46.62, 24.72}, {46.63, 24.72}, {46.63, 24.73}, {46.62, 24.72}}}, Tags: map[string]string{"building": "yes"}},
	}
}

func newTestEnv(t *testing.T, limit int, cors ...string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := &output.NoOpMetrics{}
	dir := t.TempDir()

	exporter, err := application.NewExporter(
		storage.NewLocalSink(dir),
		application.ExportOptions{Format: geojson.Format},
		metrics,
		logger,
		geojson.NewEncoder(),
	)
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}

	source := &mockSource{features: sampleFeatures()}
	sessions := application.NewSessionManager(
		overpass.NewQueryBuilder(25*time.Second),
		source,
		exporter,
		metrics,
		logger,
		application.SessionOptions{MaxSessions: limit, Kinds: domain.AllGeometryKinds()},
	)
	health := application.NewHealthService(sessions, map[string]string{"overpass": "configured"})
	reaper := application.NewReaper(sessions, time.Minute, time.Hour, logger)

	srv := NewServer(
		config.ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxBodyBytes: 1 << 20,
			CORS:         config.CORSConfig{AllowedOrigins: cors},
		},
		sessions,
		exporter,
		health,
		logger,
		WithReaper(reaper),
		WithCategories([]string{"amenity", "building", "highway"}),
	)

	return &testEnv{server: srv, sessions: sessions, source: source, exportTo: dir}
}
