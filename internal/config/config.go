// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPollSettings is returned when a polling setting is not positive.
	ErrInvalidPollSettings = errors.New("config: POLL_INTERVAL_MS, POLL_MAX_ATTEMPTS, POLL_TIMEOUT_SEC and POLL_UNKNOWN_STATUS_GRACE must be positive")
	// ErrInvalidDefaultCreativity is returned when DEFAULT_CREATIVITY is outside [0, 1].
	ErrInvalidDefaultCreativity = errors.New("config: DEFAULT_CREATIVITY must be between 0 and 1")
	// ErrInvalidHTTPTimeout is returned when REPLICATE_HTTP_TIMEOUT_SEC is not positive.
	ErrInvalidHTTPTimeout = errors.New("config: REPLICATE_HTTP_TIMEOUT_SEC must be positive")
)

// Config holds all configuration for the application.
// The Replicate credential is not part of it; callers send their own token.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	LegacyStatusOK bool     `env:"LEGACY_STATUS_OK, default=false" json:"legacy_status_ok"`

	// Replicate settings
	ReplicateBaseURL        string `env:"REPLICATE_BASE_URL, default=https://api.replicate.com/v1" json:"replicate_base_url"`
	ReplicateHTTPTimeoutSec int    `env:"REPLICATE_HTTP_TIMEOUT_SEC, default=30" json:"replicate_http_timeout_sec"`

	// Polling settings
	PollIntervalMs         int `env:"POLL_INTERVAL_MS, default=1000" json:"poll_interval_ms"`
	PollMaxAttempts        int `env:"POLL_MAX_ATTEMPTS, default=300" json:"poll_max_attempts"`
	PollTimeoutSec         int `env:"POLL_TIMEOUT_SEC, default=300" json:"poll_timeout_sec"`
	PollUnknownStatusGrace int `env:"POLL_UNKNOWN_STATUS_GRACE, default=10" json:"poll_unknown_status_grace"`

	// Generation settings
	DefaultCreativity float64 `env:"DEFAULT_CREATIVITY, default=0.2" json:"default_creativity"`

	// Optional S3 mirror settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=generations" json:"s3_prefix,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PollInterval returns the delay between status fetches.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollTimeout returns the overall polling deadline.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

// ReplicateHTTPTimeout returns the per-call timeout for Replicate requests.
func (c *Config) ReplicateHTTPTimeout() time.Duration {
	return time.Duration(c.ReplicateHTTPTimeoutSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that numeric settings are in range.
func (c *Config) Validate() error {
	if c.PollIntervalMs <= 0 || c.PollMaxAttempts <= 0 || c.PollTimeoutSec <= 0 || c.PollUnknownStatusGrace <= 0 {
		return ErrInvalidPollSettings
	}
	if c.ReplicateHTTPTimeoutSec <= 0 {
		return ErrInvalidHTTPTimeout
	}
	if c.DefaultCreativity < 0 || c.DefaultCreativity > 1 {
		return ErrInvalidDefaultCreativity
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, AllowedOrigins: %v, LegacyStatusOK: %t, ReplicateBaseURL: %s, PollIntervalMs: %d, PollMaxAttempts: %d, PollTimeoutSec: %d, DefaultCreativity: %g, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.AllowedOrigins,
		c.LegacyStatusOK,
		c.ReplicateBaseURL,
		c.PollIntervalMs,
		c.PollMaxAttempts,
		c.PollTimeoutSec,
		c.DefaultCreativity,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

// mask hides all but the last four characters of a secret.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
