// Package logging builds the zap loggers used across whiptrail.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mr-Dark-debug/whiptrail/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger from the logging section of the configuration.
// When File is set the logger writes there instead of stderr; the TUI relies
// on this because it owns the terminal.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		zc = zap.NewProductionConfig()
		zc.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableCaller = true
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		zc.OutputPaths = []string{cfg.File}
		zc.ErrorOutputPaths = []string{cfg.File}
	} else {
		zc.OutputPaths = []string{"stderr"}
		zc.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a config level name onto zap. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return l, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
