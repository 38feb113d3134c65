// Package config — config.go
//
// The SDK configuration object. Mirrors the server's
// Defaults()/merge-over-defaults pattern
// (internal/config) rather than the nested-options-bag style a JS SDK
// would use: Go callers build a Config literal or mutate the Defaults().

package config

import (
	"fmt"
	"regexp"
	"time"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

type ErrorConfig struct {
	Enabled    bool
	MaxErrors  int
	Filters    []*regexp.Regexp
	SampleRate float64
}

type PerformanceConfig struct {
	Enabled               bool
	EnableResourceTiming  bool
	EnableUserTiming      bool
	SampleRate            float64
}

type BehaviorConfig struct {
	Enabled         bool
	AutoTrackClick  bool
	AutoTrackPage   bool
	MaxBehaviors    int
}

type ReportConfig struct {
	Interval          time.Duration
	MaxQueueSize      int
	BatchSize         int
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	EnableOfflineCache bool
}

// Config is the full, merged SDK configuration.
type Config struct {
	ProjectID      string
	ServerURL      string
	APIKey         string
	UserID         string
	Tags           map[string]string
	ProjectVersion string
	Environment    Environment
	EnableInDev    bool
	SampleRate     float64

	Error       ErrorConfig
	Performance PerformanceConfig
	Behavior    BehaviorConfig
	Report      ReportConfig
}

// Defaults returns the SDK's baseline configuration. Callers overlay their
// own values on top via Merge.
func Defaults() Config {
	return Config{
		Environment: EnvProduction,
		EnableInDev: false,
		SampleRate:  1,
		Error: ErrorConfig{
			Enabled:    true,
			MaxErrors:  100,
			SampleRate: 1,
		},
		Performance: PerformanceConfig{
			Enabled:              true,
			EnableResourceTiming: true,
			EnableUserTiming:     false,
			SampleRate:           1,
		},
		Behavior: BehaviorConfig{
			Enabled:        true,
			AutoTrackClick: true,
			AutoTrackPage:  true,
			MaxBehaviors:   50,
		},
		Report: ReportConfig{
			Interval:           10 * time.Second,
			MaxQueueSize:       500,
			BatchSize:          20,
			Timeout:            5 * time.Second,
			MaxRetries:         3,
			RetryDelay:         2 * time.Second,
			EnableOfflineCache: true,
		},
	}
}

// Merge overlays user-supplied non-zero top-level fields of override onto
// base, returning the combined Config. Zero values in override are treated
// as "not specified" for scalar fields; the Tags map replaces wholesale
// when non-nil. The nested Error, Performance, Behavior and Report
// sections are always taken from base; override's values for them are
// ignored.
func Merge(base Config, override Config) Config {
	out := base
	if override.ProjectID != "" {
		out.ProjectID = override.ProjectID
	}
	if override.ServerURL != "" {
		out.ServerURL = override.ServerURL
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.UserID != "" {
		out.UserID = override.UserID
	}
	if override.Tags != nil {
		out.Tags = override.Tags
	}
	if override.ProjectVersion != "" {
		out.ProjectVersion = override.ProjectVersion
	}
	if override.Environment != "" {
		out.Environment = override.Environment
	}
	out.EnableInDev = override.EnableInDev || base.EnableInDev
	if override.SampleRate != 0 {
		out.SampleRate = override.SampleRate
	}
	return out
}

// Validate enforces the SDK's required fields and value ranges, returning
// an error the caller must treat as fatal to initialization.
func Validate(cfg Config) error {
	if cfg.ProjectID == "" {
		return fmt.Errorf("config: projectId is required")
	}
	if cfg.ServerURL == "" {
		return fmt.Errorf("config: serverUrl is required")
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return fmt.Errorf("config: sampleRate %v out of range [0,1]", cfg.SampleRate)
	}
	return nil
}
