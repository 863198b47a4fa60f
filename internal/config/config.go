// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/osmclip/internal/domain"
)

// EnvPrefix is the prefix of environment variables overriding configuration keys.
const EnvPrefix = "OSMCLIP"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Overpass   OverpassConfig `mapstructure:"overpass"`
	Session    SessionConfig  `mapstructure:"session"`
	Categories []string       `mapstructure:"categories"`
	Geometry   GeometryConfig `mapstructure:"geometry"`
	Export     ExportConfig   `mapstructure:"export"`
	Watch      WatchConfig    `mapstructure:"watch"`
	TLS        TLSConfig      `mapstructure:"tls"`
	Metrics    MetricsConfig  `mapstructure:"metrics"`
	Logging    LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// OverpassConfig holds the remote query service configuration.
type OverpassConfig struct {
	Endpoint         string        `mapstructure:"endpoint"`
	Timeout          time.Duration `mapstructure:"timeout"`       // HTTP round trip
	QueryTimeout     time.Duration `mapstructure:"query_timeout"` // [timeout:N] sent to the server
	UserAgent        string        `mapstructure:"user_agent"`
	MaxResponseBytes int64         `mapstructure:"max_response_bytes"`
}

// SessionConfig holds extraction session limits.
type SessionConfig struct {
	MaxSessions  int           `mapstructure:"max_sessions"` // 0 = unlimited
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`     // 0 = never reap
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// GeometryConfig holds the default geometry kinds of new sessions.
type GeometryConfig struct {
	Points   bool `mapstructure:"points"`
	Lines    bool `mapstructure:"lines"`
	Polygons bool `mapstructure:"polygons"`
}

// Kinds converts the configuration to domain geometry kinds.
func (g GeometryConfig) Kinds() domain.GeometryKinds {
	return domain.GeometryKinds{Points: g.Points, Lines: g.Lines, Polygons: g.Polygons}
}

// ExportConfig holds exporter and sink configuration.
type ExportConfig struct {
	Format         string     `mapstructure:"format"` // geojson, gpkg
	FilenamePrefix string     `mapstructure:"filename_prefix"`
	GeoPackage     GPKGConfig `mapstructure:"geopackage"`
	Sink           SinkConfig `mapstructure:"sink"`
}

// GPKGConfig holds GeoPackage encoder configuration.
type GPKGConfig struct {
	Table   string `mapstructure:"table"`
	TempDir string `mapstructure:"temp_dir"`
}

// SinkConfig holds export sink configuration.
type SinkConfig struct {
	Type      string      `mapstructure:"type"` // local, s3, azure, http
	LocalPath string      `mapstructure:"local_path"`
	S3        S3Config    `mapstructure:"s3"`
	Azure     AzureConfig `mapstructure:"azure"`
	HTTP      HTTPConfig  `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP upload configuration.
type HTTPConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
}

// WatchConfig holds region file watcher configuration.
type WatchConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	SessionID string        `mapstructure:"session_id"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds the Azure DNS settings for DNS-01 challenges.
// Without a subscription the HTTP-01 and TLS-ALPN challenges are used.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// DefaultCategories is the category catalogue offered to clients.
var DefaultCategories = []string{
	"amenity", "building", "highway", "landuse", "leisure", "natural",
	"place", "railway", "shop", "tourism", "waterway",
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 3*time.Minute)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_body_bytes", 4<<20)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Overpass defaults
	viper.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	viper.SetDefault("overpass.timeout", 90*time.Second)
	viper.SetDefault("overpass.query_timeout", 60*time.Second)
	viper.SetDefault("overpass.user_agent", "osmclip/dev")
	viper.SetDefault("overpass.max_response_bytes", 256<<20)

	// Session defaults
	viper.SetDefault("session.max_sessions", 100)
	viper.SetDefault("session.idle_ttl", 30*time.Minute)
	viper.SetDefault("session.reap_interval", time.Minute)

	viper.SetDefault("categories", DefaultCategories)

	viper.SetDefault("geometry.points", true)
	viper.SetDefault("geometry.lines", true)
	viper.SetDefault("geometry.polygons", true)

	// Export defaults
	viper.SetDefault("export.format", "geojson")
	viper.SetDefault("export.filename_prefix", "osm_extract")
	viper.SetDefault("export.geopackage.table", "osm_features")
	viper.SetDefault("export.sink.type", "local")
	viper.SetDefault("export.sink.local_path", "./exports")
	viper.SetDefault("export.sink.http.timeout", 5*time.Minute)

	// Watch defaults
	viper.SetDefault("watch.enabled", false)
	viper.SetDefault("watch.path", "./regions")
	viper.SetDefault("watch.session_id", "watch")
	viper.SetDefault("watch.debounce", 500*time.Millisecond)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.namespace", "osmclip")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/osmclip")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}

	if c.Overpass.Endpoint == "" {
		return &domain.ConfigError{Field: "overpass.endpoint", Message: "endpoint is required"}
	}
	if c.Overpass.QueryTimeout < 0 || c.Overpass.Timeout < 0 {
		return &domain.ConfigError{Field: "overpass.timeout", Message: "timeouts must not be negative"}
	}

	if c.Session.MaxSessions < 0 {
		return &domain.ConfigError{Field: "session.max_sessions", Message: "must not be negative"}
	}
	if c.Session.IdleTTL > 0 && c.Session.ReapInterval <= 0 {
		return &domain.ConfigError{Field: "session.reap_interval", Message: "required when idle_ttl is set"}
	}

	if !c.Geometry.Points && !c.Geometry.Lines && !c.Geometry.Polygons {
		return &domain.ConfigError{Field: "geometry", Message: "at least one geometry kind must be enabled"}
	}

	switch c.Export.Format {
	case "geojson", "gpkg":
	default:
		return &domain.ConfigError{Field: "export.format", Message: "unknown format " + c.Export.Format}
	}

	if err := c.Export.Sink.validate(); err != nil {
		return err
	}

	if c.Watch.Enabled {
		if c.Watch.Path == "" {
			return &domain.ConfigError{Field: "watch.path", Message: "path is required"}
		}
		if c.Watch.SessionID == "" {
			return &domain.ConfigError{Field: "watch.session_id", Message: "session id is required"}
		}
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return &domain.ConfigError{Field: "tls.domains", Message: "TLS enabled but no domains specified"}
		}
		if c.TLS.Email == "" {
			return &domain.ConfigError{Field: "tls.email", Message: "TLS enabled but no email specified"}
		}
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return &domain.ConfigError{Field: "logging.format", Message: "must be json or text"}
	}

	return nil
}

func (s *SinkConfig) validate() error {
	switch s.Type {
	case "local":
		if s.LocalPath == "" {
			return &domain.ConfigError{Field: "export.sink.local_path", Message: "local sink path is required"}
		}
	case "s3":
		if s.S3.Bucket == "" {
			return &domain.ConfigError{Field: "export.sink.s3.bucket", Message: "S3 bucket is required"}
		}
		if s.S3.Region == "" {
			return &domain.ConfigError{Field: "export.sink.s3.region", Message: "S3 region is required"}
		}
	case "azure":
		if s.Azure.Container == "" {
			return &domain.ConfigError{Field: "export.sink.azure.container", Message: "azure container is required"}
		}
		if s.Azure.AccountName == "" && s.Azure.ConnectionString == "" {
			return &domain.ConfigError{
				Field:   "export.sink.azure",
				Message: "azure account name or connection string is required",
			}
		}
	case "http":
		if s.HTTP.BaseURL == "" {
			return &domain.ConfigError{Field: "export.sink.http.base_url", Message: "HTTP base URL is required"}
		}
	default:
		return &domain.ConfigError{Field: "export.sink.type", Message: "unknown sink type " + s.Type}
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
