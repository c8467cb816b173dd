// Package config loads and validates build-progress configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported cache backends.
const (
	BackendLocal    = "local"
	BackendMemory   = "memory"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Project   ProjectConfig   `mapstructure:"project"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Estimator EstimatorConfig `mapstructure:"estimator"`
	Cache     CacheConfig     `mapstructure:"cache"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Report    ReportConfig    `mapstructure:"report"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ProjectConfig locates the project being built.
type ProjectConfig struct {
	Dir string `mapstructure:"dir"`
}

// ScanConfig controls the cold-mode source count.
type ScanConfig struct {
	SourceDir  string   `mapstructure:"source_dir"`
	Extensions []string `mapstructure:"extensions"`
}

// EstimatorConfig tunes estimation.
type EstimatorConfig struct {
	DependencyMarkers []string `mapstructure:"dependency_markers"`
}

// CacheConfig selects where the previous build's totals live.
type CacheConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	File      string `mapstructure:"file"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the Postgres cache backend.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for build-finished notifications. Publishing is
// disabled unless both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether notifications should be published.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != "" && p.TopicName != ""
}

// ProgressConfig sizes the event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// ReportConfig controls the text reporter.
type ReportConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// ServerConfig controls the HTTP hook receiver.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from an optional file plus BUILDPROGRESS_* environment
// variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUILDPROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project.dir", ".")
	v.SetDefault("scan.source_dir", "src")
	v.SetDefault("scan.extensions", []string{"vue", "ts", "js", "jsx", "tsx", "css", "scss", "sass", "styl", "less"})
	v.SetDefault("estimator.dependency_markers", []string{"node_modules"})
	v.SetDefault("cache.backend", BackendLocal)
	v.SetDefault("cache.dir", filepath.Join("node_modules", ".progress"))
	v.SetDefault("cache.file", "index.json")
	v.SetDefault("cache.gcs_bucket", "")
	v.SetDefault("cache.prefix", "build-progress")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "build_cache")
	v.SetDefault("db.max_conns", 2)
	v.SetDefault("db.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.prefix", "[build]")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "build-progress")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Project.Dir) == "" {
		return fmt.Errorf("project.dir must be set")
	}
	if strings.TrimSpace(c.Scan.SourceDir) == "" {
		return fmt.Errorf("scan.source_dir must be set")
	}
	if len(c.Scan.Extensions) == 0 {
		return fmt.Errorf("scan.extensions must list at least one extension")
	}
	switch c.Cache.Backend {
	case BackendLocal:
		if c.Cache.Dir == "" || c.Cache.File == "" {
			return fmt.Errorf("cache.dir and cache.file must be set for the local backend")
		}
	case BackendMemory:
	case BackendGCS:
		if c.Cache.GCSBucket == "" {
			return fmt.Errorf("cache.gcs_bucket must be set for the gcs backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// SourceRoot resolves the scan root against the project directory.
func (c Config) SourceRoot() string {
	return c.resolve(c.Scan.SourceDir)
}

// CacheDir resolves the local cache directory against the project directory.
func (c Config) CacheDir() string {
	return c.resolve(c.Cache.Dir)
}

func (c Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Project.Dir, p)
}
