// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jobrunner/osmclip/internal/adapters/geojson"
	"github.com/jobrunner/osmclip/internal/adapters/geopackage"
	httpAdapter "github.com/jobrunner/osmclip/internal/adapters/http"
	"github.com/jobrunner/osmclip/internal/adapters/metrics"
	"github.com/jobrunner/osmclip/internal/adapters/overpass"
	"github.com/jobrunner/osmclip/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/osmclip/internal/adapters/tls"
	"github.com/jobrunner/osmclip/internal/adapters/watcher"
	"github.com/jobrunner/osmclip/internal/application"
	"github.com/jobrunner/osmclip/internal/config"
	"github.com/jobrunner/osmclip/internal/domain"
	"github.com/jobrunner/osmclip/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Overpass   *overpass.Client
	Builder    *overpass.QueryBuilder
	Sink       output.FileSink
	Exporter   *application.Exporter
	Sessions   *application.SessionManager
	Reaper     *application.Reaper
	Health     *application.HealthService
	HTTPServer *httpAdapter.Server
	TLSServer  *tlsAdapter.Server
	Watcher    *watcher.Watcher
	Feeder     *watcher.RegionFeeder
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.Metrics = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, app.Registry)
		metricsCollector = app.Metrics
	}

	// Initialize Overpass client
	app.Overpass = overpass.NewClient(overpass.Config{
		Endpoint:         cfg.Overpass.Endpoint,
		Timeout:          cfg.Overpass.Timeout,
		UserAgent:        cfg.Overpass.UserAgent,
		MaxResponseBytes: cfg.Overpass.MaxResponseBytes,
	}, logger)
	app.Builder = overpass.NewQueryBuilder(cfg.Overpass.QueryTimeout)

	// Initialize export sink
	sink, err := initSink(ctx, cfg.Export.Sink)
	if err != nil {
		return nil, fmt.Errorf("initializing export sink: %w", err)
	}
	app.Sink = sink

	// Initialize exporter
	app.Exporter, err = application.NewExporter(
		app.Sink,
		application.ExportOptions{
			Format:         cfg.Export.Format,
			FilenamePrefix: cfg.Export.FilenamePrefix,
		},
		metricsCollector,
		logger,
		geojson.NewEncoder(),
		geopackage.NewEncoder(cfg.Export.GeoPackage.Table, cfg.Export.GeoPackage.TempDir),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing exporter: %w", err)
	}

	// Initialize session manager
	app.Sessions = application.NewSessionManager(
		app.Builder,
		app.Overpass,
		app.Exporter,
		metricsCollector,
		logger,
		application.SessionOptions{
			MaxSessions: cfg.Session.MaxSessions,
			Filters:     domain.NewCategoryFilter(cfg.Categories...),
			Kinds:       cfg.Geometry.Kinds(),
		},
	)

	if cfg.Session.IdleTTL > 0 {
		app.Reaper = application.NewReaper(app.Sessions, cfg.Session.ReapInterval, cfg.Session.IdleTTL, logger)
	}

	app.Health = application.NewHealthService(app.Sessions, map[string]string{
		"overpass": app.Overpass.Endpoint(),
		"sink":     cfg.Export.Sink.Type,
		"format":   app.Exporter.Format(),
	})

	// Initialize HTTP server
	opts := []httpAdapter.Option{httpAdapter.WithCategories(cfg.Categories)}
	if app.Reaper != nil {
		opts = append(opts, httpAdapter.WithReaper(app.Reaper))
	}
	app.HTTPServer = httpAdapter.NewServer(cfg.Server, app.Sessions, app.Exporter, app.Health, logger, opts...)
	if app.Metrics != nil {
		app.HTTPServer.Use(app.Metrics.Middleware)
		app.HTTPServer.Mount(cfg.Metrics.Path, metrics.HandlerFor(app.Registry))
	}

	// Initialize TLS server if enabled
	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Initialize region file watcher
	if cfg.Watch.Enabled {
		app.Feeder = watcher.NewRegionFeeder(app.Sessions, cfg.Watch.SessionID, logger)
		w, err := watcher.New(
			watcher.Config{
				Dir:      cfg.Watch.Path,
				Debounce: cfg.Watch.Debounce,
			},
			app.Feeder.Handle,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize region watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts all application components and blocks while serving.
func (a *App) Start(ctx context.Context) error {
	if a.Reaper != nil {
		a.Reaper.Start(ctx)
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start region watcher", "error", err)
		}
	}

	if a.TLSServer != nil {
		return a.TLSServer.ListenAndServe(ctx, a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}
	if a.Reaper != nil {
		a.Reaper.Stop()
	}

	var errs []error
	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			a.Logger.Error("TLS server shutdown error", "error", err)
			errs = append(errs, err)
		}
	}
	if err := a.HTTPServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error("HTTP server shutdown error", "error", err)
		errs = append(errs, err)
	}

	// Cancels in-flight fetches
	for _, s := range a.Sessions.List() {
		if err := a.Sessions.Delete(s.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.Logger.Error("failed to close session", "id", s.ID, "error", err)
		}
	}

	return errors.Join(errs...)
}

// ExtractRegion runs one extraction for a region outside any server session
// and exports the result under name. An empty format selects the default.
func (a *App) ExtractRegion(ctx context.Context, points []domain.Coordinate, name, format string) (*domain.ExportArtifact, error) {
	session, err := a.Sessions.Create()
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Sessions.Delete(session.ID()) }()

	if err := session.FinishDrawing(points); err != nil {
		return nil, err
	}
	outcome, err := session.RequestExtraction(ctx)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("region extracted", "features", outcome.Features, "empty", outcome.Empty)

	return session.RequestExportAs(ctx, name, format)
}

// Query renders the Overpass query a session would send for the region.
func (a *App) Query(points []domain.Coordinate) (domain.ExtractionQuery, error) {
	region, err := domain.NewRegion("query", points)
	if err != nil {
		return "", err
	}
	return a.Builder.Build(region, domain.NewCategoryFilter(a.Config.Categories...)), nil
}

// initSink initializes the configured export sink.
func initSink(ctx context.Context, cfg config.SinkConfig) (output.FileSink, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalSink(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Sink(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureSink(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPSink(storage.HTTPConfig{
			BaseURL:  cfg.HTTP.BaseURL,
			Timeout:  cfg.HTTP.Timeout,
			Username: cfg.HTTP.Username,
			Password: cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Type)
	}
}
