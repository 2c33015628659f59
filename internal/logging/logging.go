// ABOUTME: zap logger construction for the receiver binaries
// ABOUTME: Console or file output, plus a StatusSink that logs status messages
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

// Options selects the log level and destination
type Options struct {
	// Level is a zap level name ("debug", "info", "warn", "error")
	Level string

	// Verbose forces debug level
	Verbose bool

	// File, if set, receives JSON logs instead of the console
	File string
}

// NewLogger builds a sugared logger. Console output is human readable;
// file output is JSON so it can be shipped elsewhere.
func NewLogger(opts Options) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		cfg = zap.NewProductionConfig()
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// StatusLogger writes every status notification to a logger
type StatusLogger struct {
	logger *zap.SugaredLogger
}

// NewStatusLogger returns a receiver.StatusSink backed by logger
func NewStatusLogger(logger *zap.SugaredLogger) *StatusLogger {
	return &StatusLogger{logger: logger.Named("status")}
}

// OnStatus implements receiver.StatusSink
func (s *StatusLogger) OnStatus(st receiver.Status) {
	s.logger.Infow(st.Message, "at", st.Time)
}
