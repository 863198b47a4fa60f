// Package main provides the entry point for the osmclip extraction service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/osmclip/internal/adapters/geojson"
	"github.com/jobrunner/osmclip/internal/app"
	"github.com/jobrunner/osmclip/internal/config"
	"github.com/jobrunner/osmclip/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "osmclip",
	Short: "osmclip - OpenStreetMap region extraction service",
	Long: `osmclip extracts OpenStreetMap features inside a user-drawn polygon.

A region is drawn, finished or edited through the REST API or by dropping
GeoJSON files into a watched directory. Extraction queries the Overpass API
for the configured categories and exports the result.

Features:
  - Per-session region drawing with cancel-on-change extraction
  - Category and geometry kind filters
  - GeoJSON and GeoPackage exports
  - Multiple export sinks (local, AWS S3, Azure, HTTP)
  - Region file watcher
  - TLS with automatic certificate management
  - Prometheus metrics`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("osmclip %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <region.geojson>",
	Short: "Extract the features inside a region file and export them",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var queryCmd = &cobra.Command{
	Use:   "query <region.geojson>",
	Short: "Print the Overpass query for a region file",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("overpass", "", "Overpass API endpoint")
	rootCmd.PersistentFlags().StringSlice("categories", nil, "OSM tag keys to extract (e.g., amenity,highway)")

	// Server flags
	rootCmd.Flags().String("host", "0.0.0.0", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Bool("tls", false, "enable TLS")
	rootCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	rootCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
	rootCmd.Flags().Bool("watch", false, "watch a directory for region files")
	rootCmd.Flags().String("watch-path", "./regions", "region file directory")

	// Export flags
	rootCmd.PersistentFlags().String("format", "geojson", "export format (geojson, gpkg)")
	rootCmd.PersistentFlags().String("sink-type", "local", "export sink type (local, s3, azure, http)")
	rootCmd.PersistentFlags().String("sink-path", "./exports", "local export directory")

	extractCmd.Flags().String("name", "", "export file name (default: generated)")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("overpass.endpoint", rootCmd.PersistentFlags().Lookup("overpass"))
	_ = viper.BindPFlag("categories", rootCmd.PersistentFlags().Lookup("categories"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", rootCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", rootCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("watch.enabled", rootCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("watch.path", rootCmd.Flags().Lookup("watch-path"))
	_ = viper.BindPFlag("export.format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("export.sink.type", rootCmd.PersistentFlags().Lookup("sink-type"))
	_ = viper.BindPFlag("export.sink.local_path", rootCmd.PersistentFlags().Lookup("sink-path"))

	rootCmd.AddCommand(versionCmd, extractCmd, queryCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

func runServer(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting osmclip",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"overpass", cfg.Overpass.Endpoint,
		"sink_type", cfg.Export.Sink.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "address", cfg.Server.Address())
		if err := application.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		cancel()
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// Stdout carries the command output
	logger := setupLogger(cfg.Logging, os.Stderr)

	points, err := readRegion(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	artifact, err := application.ExtractRegion(ctx, points, name, cfg.Export.Format)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d features exported to %s\n", artifact.Features, artifact.Location)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	points, err := readRegion(args[0])
	if err != nil {
		return err
	}

	application, err := app.New(cmd.Context(), cfg, setupLogger(cfg.Logging, os.Stderr))
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}

	query, err := application.Query(points)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), query.String())
	return nil
}

func readRegion(path string) ([]domain.Coordinate, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("reading region file: %w", err)
	}
	points, err := geojson.DecodeRegion(data)
	if err != nil {
		return nil, fmt.Errorf("decoding region file %s: %w", path, err)
	}
	return points, nil
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
