// Barrage - Danmaku Aggregation and Delivery
// Copyright 2026 Okanami
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okanami/barrage

// Package config loads the static application configuration.
//
// Configuration is resolved in three layers, later layers overriding
// earlier ones:
//
//  1. compiled-in defaults
//  2. YAML config file (config.yaml, or CONFIG_PATH)
//  3. BARRAGE_-prefixed environment variables
//
// Runtime-mutable tunables (TTLs, cookies, blacklists, quotas) do NOT
// live here; they live in the settings store (internal/settings) so they
// can change without a restart.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Task      TaskConfig      `koanf:"task"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Security  SecurityConfig  `koanf:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed CORS origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs/RateLimitWindow throttle inbound HTTP requests
	// (distinct from the outbound provider governor).
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// TaskConfig holds task manager settings.
type TaskConfig struct {
	// QueueCapacity bounds each of the three task queues.
	QueueCapacity int `koanf:"queue_capacity"`

	// RecoveryPath is the Badger directory for crash-recovery parameter
	// snapshots.
	RecoveryPath string `koanf:"recovery_path"`

	// ProgressFlushInterval throttles task history writes from the
	// progress checkpoint.
	ProgressFlushInterval time.Duration `koanf:"progress_flush_interval"`
}

// RateLimitConfig locates the signed rate-limit artifact set.
type RateLimitConfig struct {
	// Dir contains rate_limit.bin, rate_limit.bin.sig, rate_limit.uid
	// and public_key.pem. Empty disables artifact verification and the
	// global limiter.
	Dir string `koanf:"dir"`
}

// SecurityConfig holds authentication settings.
type SecurityConfig struct {
	// JWTSecret signs admin session tokens. Required in production.
	JWTSecret string `koanf:"jwt_secret"`

	// AdminUsername/AdminPasswordHash gate the management endpoints.
	// The hash is bcrypt.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	// SessionTimeout bounds admin session validity.
	SessionTimeout time.Duration `koanf:"session_timeout"`
}

// Validate checks the configuration for fatal inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Task.QueueCapacity <= 0 {
		return fmt.Errorf("task.queue_capacity must be positive")
	}
	return nil
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            7768,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
		},
		Database: DatabaseConfig{
			Path:      "/data/barrage.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Task: TaskConfig{
			QueueCapacity:         256,
			RecoveryPath:          "/data/task-recovery",
			ProgressFlushInterval: 500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Dir: "/data/ratelimit",
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			AdminUsername:  "admin",
			SessionTimeout: 24 * time.Hour,
		},
	}
}
