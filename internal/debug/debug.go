// Package debug holds logging helpers shared by the commands and the
// pipeline phases.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. verbose forces debug level; format
// "console" switches to the human readable encoder. When logDir is set,
// entries are also appended to a per-run file named by LogFileName.
func NewLogger(level, format string, verbose bool, logDir string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(logDir, LogFileName(time.Now())))
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// LogFileName returns the name of the log file of a run started at t.
func LogFileName(t time.Time) string {
	return fmt.Sprintf("pipeline_%s.log", t.UTC().Format("20060102_150405"))
}

// Timing logs the start of operation at debug level and returns a func
// that logs its duration when called.
//
//	defer debug.Timing(log, "build companies")()
func Timing(log *zap.Logger, operation string) func() {
	if log == nil {
		return func() {}
	}

	start := time.Now()
	log.Debug("Starting", zap.String("operation", operation))

	return func() {
		log.Info("Completed",
			zap.String("operation", operation),
			zap.Duration("took", time.Since(start)))
	}
}
