// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the Cognito server configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML config
// file, and environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Cognito server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Tracker   TrackerConfig   `koanf:"tracker"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Simplify  SimplifyConfig  `koanf:"simplify"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds DuckDB event-store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:" for ephemeral storage.
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = runtime.NumCPU()
}

// PipelineConfig controls the in-process ingestion pipeline. When disabled
// (the default) the track endpoint writes events to the store synchronously;
// when enabled, batches flow through a Watermill GoChannel topic into a
// batching appender.
type PipelineConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Topic         string        `koanf:"topic"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	BufferSize    int           `koanf:"buffer_size"` // GoChannel output buffer
}

// TrackerConfig holds the client instrumentation defaults used by the
// embedded tracker SDK.
type TrackerConfig struct {
	Endpoint      string        `koanf:"endpoint"`       // ingestion URL
	FlushInterval time.Duration `koanf:"flush_interval"` // periodic flush cadence
	IdleThreshold time.Duration `koanf:"idle_threshold"` // pointer-still duration counted as idle
	SendTimeout   time.Duration `koanf:"send_timeout"`
}

// AnalyticsConfig tunes the aggregation surface.
type AnalyticsConfig struct {
	CacheTTL     time.Duration `koanf:"cache_ttl"`     // summary response cache
	ActiveWindow time.Duration `koanf:"active_window"` // trailing active-user window
	TopPosts     int           `koanf:"top_posts"`
}

// SimplifyConfig gates the text-simplification collaborator. An empty APIKey
// disables the feature silently: callers receive fallback suggestions.
type SimplifyConfig struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	Model          string        `koanf:"model"`
	Timeout        time.Duration `koanf:"timeout"`
	RequestsPerMin int           `koanf:"requests_per_min"`
	Burst          int           `koanf:"burst"`
}

// SecurityConfig holds CORS and rate limiting settings for the HTTP surface.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Pipeline.Enabled {
		if c.Pipeline.BatchSize <= 0 {
			return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
		}
		if c.Pipeline.FlushInterval <= 0 {
			return fmt.Errorf("pipeline.flush_interval must be positive, got %s", c.Pipeline.FlushInterval)
		}
		if c.Pipeline.Topic == "" {
			return fmt.Errorf("pipeline.topic is required when the pipeline is enabled")
		}
	}
	if c.Tracker.FlushInterval <= 0 {
		return fmt.Errorf("tracker.flush_interval must be positive, got %s", c.Tracker.FlushInterval)
	}
	if c.Analytics.ActiveWindow <= 0 {
		return fmt.Errorf("analytics.active_window must be positive, got %s", c.Analytics.ActiveWindow)
	}
	if c.Analytics.TopPosts <= 0 {
		return fmt.Errorf("analytics.top_posts must be positive, got %d", c.Analytics.TopPosts)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	return nil
}

// SimplifyEnabled reports whether the text-simplification collaborator is
// reachable. Absence of the key disables the feature silently.
func (c *Config) SimplifyEnabled() bool {
	return c.Simplify.APIKey != ""
}
