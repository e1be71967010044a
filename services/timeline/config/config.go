// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads TimeLayer server configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" yaml:"server"`

	// Storage contains BadgerDB settings.
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains log output settings.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Tracing contains trace export settings.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// MaxConflictRetries bounds submission restarts after a conflict.
	MaxConflictRetries int `json:"max_conflict_retries" yaml:"max_conflict_retries"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port  int  `json:"port" yaml:"port"`
	Debug bool `json:"debug" yaml:"debug"`
}

// StorageConfig contains BadgerDB settings.
type StorageConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string `json:"path" yaml:"path"`

	// InMemory disables persistence; data is lost on shutdown.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval"`
}

// LoggingConfig contains log output settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`

	// Dir enables file logging alongside stderr when set.
	Dir string `json:"dir" yaml:"dir"`

	// JSON switches stderr output to JSON format.
	JSON bool `json:"json" yaml:"json"`
}

// TracingConfig contains trace export settings.
type TracingConfig struct {
	// Exporter is one of none, stdout, otlp. Empty means none.
	Exporter string `json:"exporter" yaml:"exporter"`

	// OTLPEndpoint is the collector address for the otlp exporter,
	// e.g. "localhost:4317".
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`

	// OTLPInsecure disables TLS on the collector connection.
	OTLPInsecure bool `json:"otlp_insecure" yaml:"otlp_insecure"`
}

// Default returns production defaults: port 8080, a database under
// ~/.timelayer, durable writes, info-level text logs.
func Default() Config {
	homeDir, _ := os.UserHomeDir()
	return Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			Path:       filepath.Join(homeDir, ".timelayer", "db"),
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
		MaxConflictRetries: 3,
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return errors.New("storage path is required unless in_memory is set")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown trace exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.Exporter == "otlp" && c.Tracing.OTLPEndpoint == "" {
		return errors.New("otlp_endpoint is required when the otlp exporter is enabled")
	}
	if c.MaxConflictRetries < 0 {
		return errors.New("max_conflict_retries must not be negative")
	}
	return nil
}

// Load reads configuration from a YAML file, falling back to defaults
// for anything the file omits, then applies environment overrides.
//
// Inputs:
//   - path: YAML file path. Empty string skips the file and uses
//     defaults plus environment overrides.
//
// Outputs:
//   - Config: The merged configuration.
//   - error: Non-nil if the file is unreadable, malformed, or the
//     merged result is invalid.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments override file settings without
// editing the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIMELAYER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TIMELAYER_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TIMELAYER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
