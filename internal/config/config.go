// Package config provides configuration loading, validation, and hot-reload
// for the monitor ingestion server.
//
// Configuration file: /etc/monitor/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Server listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - A valid new config is logged; none of its values are applied to the
//     running process. Every change, including queue concurrency,
//     thresholds and log level, takes effect only after a restart.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The server does NOT crash on invalid hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (e.g., similarity threshold ∈ [0,1]).
//   - Invalid config on startup: server refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the build via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the monitor server.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID identifies this server instance in logs and metrics.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	Server        ServerConfig        `yaml:"server"`
	Fingerprint   FingerprintConfig   `yaml:"fingerprint"`
	Queues        QueuesConfig        `yaml:"queues"`
	Storage       StorageConfig       `yaml:"storage"`
	Blob          BlobConfig          `yaml:"blob"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Diagnosis     DiagnosisConfig     `yaml:"diagnosis"`
	Observability ObservabilityConfig `yaml:"observability"`
	Admin         AdminConfig         `yaml:"admin"`
}

// ServerConfig holds the HTTP intake listener's operational parameters.
type ServerConfig struct {
	// ListenAddr is the chi router's bind address. Default: 0.0.0.0:8080.
	ListenAddr string `yaml:"listen_addr"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// ProjectCacheTTL bounds how long a resolved ProjectConfig is cached by
	// API key before the auth middleware re-fetches it.
	ProjectCacheTTL time.Duration `yaml:"project_cache_ttl"`

	// MaxBodyBytes caps a single report/upload request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// AuthSecret signs the project-cache tokens the intake middleware
	// hands back on a successful API-key lookup. Empty disables token
	// issuance; the TTL cache still works, it just isn't replicable
	// across server instances.
	AuthSecret string `yaml:"auth_secret"`
}

// FingerprintConfig holds MinHash and similarity-search parameters.
type FingerprintConfig struct {
	// K is the number of hash functions in a MinHash signature. Default: 128.
	K int `yaml:"k"`

	// SimilarityThreshold gates when two fingerprints are merged.
	// Range: [0.0, 1.0]. Default: 0.8.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// LSHBandSize is the number of signature words per LSH band, must
	// evenly divide K. Default: 4.
	LSHBandSize int `yaml:"lsh_band_size"`
}

// QueuesConfig holds per-pipeline-stage worker pool sizing.
type QueuesConfig struct {
	ErrorProcessing     QueueConfig `yaml:"error_processing"`
	ErrorAggregation    QueueConfig `yaml:"error_aggregation"`
	SourcemapProcessing QueueConfig `yaml:"sourcemap_processing"`
	EmailNotification   QueueConfig `yaml:"email_notification"`
	AIDiagnosis         QueueConfig `yaml:"ai_diagnosis"`
}

// QueueConfig mirrors queue.Config's fields for YAML binding.
type QueueConfig struct {
	Capacity    int           `yaml:"capacity"`
	Concurrency int           `yaml:"concurrency"`
	MaxRetries  int           `yaml:"max_retries"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// StorageConfig holds bbolt parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the bbolt file.
	// Default: /var/lib/monitor/monitor.db.
	DBPath string `yaml:"db_path"`
}

// BlobConfig holds the uploaded-archive filesystem root.
type BlobConfig struct {
	// Root is the directory uploaded source-code and source-map archives
	// are extracted under, one subdirectory per (projectId, version).
	Root string `yaml:"root"`
}

// SMTPConfig holds outbound mail settings for the notification worker.
type SMTPConfig struct {
	Addr        string        `yaml:"addr"`
	From        string        `yaml:"from"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// DiagnosisConfig holds the optional LLM diagnosis gRPC client settings.
type DiagnosisConfig struct {
	// Enabled gates the ai-diagnosis queue; when false the worker pool for
	// it is never started.
	Enabled    bool          `yaml:"enabled"`
	TargetAddr string        `yaml:"target_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// AdminConfig holds the operator override Unix socket parameters.
type AdminConfig struct {
	// SocketPath is the Unix domain socket the admin CLI connects to for
	// queue introspection and dead-letter requeue. Permissions: 0600.
	SocketPath string `yaml:"socket_path"`
	Enabled    bool   `yaml:"enabled"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	defaultQueue := QueueConfig{Capacity: 1024, Concurrency: 4, MaxRetries: 3, BaseDelay: 2 * time.Second}
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Server: ServerConfig{
			ListenAddr:      "0.0.0.0:8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			ProjectCacheTTL: 30 * time.Second,
			MaxBodyBytes:    2 << 20,
		},
		Fingerprint: FingerprintConfig{
			K:                   128,
			SimilarityThreshold: 0.8,
			LSHBandSize:         4,
		},
		Queues: QueuesConfig{
			ErrorProcessing:     defaultQueue,
			ErrorAggregation:    defaultQueue,
			SourcemapProcessing: defaultQueue,
			EmailNotification:   defaultQueue,
			AIDiagnosis:         defaultQueue,
		},
		Storage: StorageConfig{
			DBPath: "/var/lib/monitor/monitor.db",
		},
		Blob: BlobConfig{
			Root: "/var/lib/monitor/blobs",
		},
		SMTP: SMTPConfig{
			Addr:        "localhost:25",
			MinInterval: time.Second,
		},
		Diagnosis: DiagnosisConfig{
			Enabled: false,
			Timeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Admin: AdminConfig{
			Enabled:    true,
			SocketPath: "/run/monitor/admin.sock",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, "server.listen_addr must not be empty")
	}
	if cfg.Server.MaxBodyBytes < 1024 {
		errs = append(errs, fmt.Sprintf("server.max_body_bytes must be >= 1024, got %d", cfg.Server.MaxBodyBytes))
	}
	if cfg.Fingerprint.K < 16 || cfg.Fingerprint.K > 1024 {
		errs = append(errs, fmt.Sprintf("fingerprint.k must be in [16, 1024], got %d", cfg.Fingerprint.K))
	}
	if cfg.Fingerprint.SimilarityThreshold < 0.0 || cfg.Fingerprint.SimilarityThreshold > 1.0 {
		errs = append(errs, fmt.Sprintf("fingerprint.similarity_threshold must be in [0.0, 1.0], got %f", cfg.Fingerprint.SimilarityThreshold))
	}
	band := cfg.Fingerprint.LSHBandSize
	if band < 1 || (cfg.Fingerprint.K > 0 && cfg.Fingerprint.K%band != 0) {
		errs = append(errs, fmt.Sprintf("fingerprint.lsh_band_size must evenly divide k, got band=%d k=%d", band, cfg.Fingerprint.K))
	}
	for name, q := range map[string]QueueConfig{
		"error_processing":     cfg.Queues.ErrorProcessing,
		"error_aggregation":    cfg.Queues.ErrorAggregation,
		"sourcemap_processing": cfg.Queues.SourcemapProcessing,
		"email_notification":   cfg.Queues.EmailNotification,
		"ai_diagnosis":         cfg.Queues.AIDiagnosis,
	} {
		if q.Capacity < 1 {
			errs = append(errs, fmt.Sprintf("queues.%s.capacity must be >= 1, got %d", name, q.Capacity))
		}
		if q.Concurrency < 1 {
			errs = append(errs, fmt.Sprintf("queues.%s.concurrency must be >= 1, got %d", name, q.Concurrency))
		}
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Blob.Root == "" {
		errs = append(errs, "blob.root must not be empty")
	}
	if cfg.SMTP.MinInterval < time.Millisecond {
		errs = append(errs, "smtp.min_interval must be positive")
	}
	if cfg.Diagnosis.Enabled && cfg.Diagnosis.TargetAddr == "" {
		errs = append(errs, "diagnosis.target_addr is required when diagnosis.enabled=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s",
			joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
