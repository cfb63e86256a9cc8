// Cognito - Reader Engagement and Cognitive Load Analytics
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cognito/config.yaml",
	"/etc/cognito/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "COGNITO_CONFIG_PATH"

// EnvPrefix namespaces Cognito's environment variables so that generic
// deployment variables (DATABASE_PATH, SERVER_PORT from another service)
// never leak into the configuration.
const EnvPrefix = "COGNITO_"

// envSections are the top-level koanf sections addressable from environment
// variables, e.g. COGNITO_SERVER_PORT -> server.port.
var envSections = []string{
	"server", "database", "pipeline", "tracker",
	"analytics", "simplify", "security", "logging",
}

// Default returns a Config with all built-in defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8787,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/cognito.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Pipeline: PipelineConfig{
			Enabled:       false,
			Topic:         "engagement.events",
			BatchSize:     500,
			FlushInterval: 5 * time.Second,
			BufferSize:    1024,
		},
		Tracker: TrackerConfig{
			Endpoint:      "http://127.0.0.1:8787/api/v1/track",
			FlushInterval: 10 * time.Second,
			IdleThreshold: 10 * time.Second,
			SendTimeout:   5 * time.Second,
		},
		Analytics: AnalyticsConfig{
			CacheTTL:     5 * time.Minute,
			ActiveWindow: 5 * time.Minute,
			TopPosts:     5,
		},
		Simplify: SimplifyConfig{
			APIKey:         "",
			BaseURL:        "https://api.groq.com/v1",
			Model:          "llama3-8b-8192",
			Timeout:        30 * time.Second,
			RequestsPerMin: 60,
			Burst:          5,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources, highest priority last:
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (COGNITO_SERVER_PORT, COGNITO_SIMPLIFY_API_KEY, ...)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SERVER_PORT -> server.port, SECURITY_RATE_LIMIT_REQS -> security.rate_limit_reqs
	envProvider := env.Provider(EnvPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// envTransform maps a COGNITO_-prefixed environment variable name to its
// koanf path, or returns "" for anything else so that ambient process
// environment (PATH, HOME, an unrelated DATABASE_PATH, ...) is ignored.
func envTransform(name string) string {
	if !strings.HasPrefix(name, EnvPrefix) {
		return ""
	}
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	for _, section := range envSections {
		prefix := section + "_"
		if strings.HasPrefix(lower, prefix) {
			return section + "." + strings.TrimPrefix(lower, prefix)
		}
	}
	return ""
}

// findConfigFile searches the override env var, then the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are the config paths parsed as comma-separated slices
// when supplied through environment variables.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env strings to slices for the
// known slice fields. YAML-sourced values are already slices and are left
// untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		str, ok := val.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for %s", val, path)
		}

		var parts []string
		for _, p := range strings.Split(str, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
