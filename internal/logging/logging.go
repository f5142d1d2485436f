// Package logging builds the process-wide zap logger.
//
// Every service constructor in this codebase accepts a *zap.Logger and
// falls back to zap.NewNop() when given nil, so packages stay testable
// without a configured logger.
package logging

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum enabled level: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format selects the encoder: "json" or "console".
	Format string `koanf:"format"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
	}
}

// Validate checks config for errors.
func (c Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	return nil
}

// New creates a logger from config.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing level: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = cfg.Format
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	return logger, nil
}

// Sync flushes buffered log entries, ignoring harmless stdout/stderr
// sync errors (EINVAL or ENOTTY on Linux).
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
