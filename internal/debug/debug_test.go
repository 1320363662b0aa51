package debug

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		verbose bool
		want    zapcore.Level
	}{
		{name: "default", want: zapcore.InfoLevel},
		{name: "warn", level: "WARN", want: zapcore.WarnLevel},
		{name: "verbose wins", level: "error", verbose: true, want: zapcore.DebugLevel},
		{name: "console", level: "info", format: "console", want: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewLogger(tt.level, tt.format, tt.verbose, "")
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, log.Core().Enabled(tt.want-1))
			}
		})
	}

	_, err := NewLogger("loud", "json", false, "")
	assert.Error(t, err)
}

func TestNewLoggerWritesRunFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := NewLogger("info", "json", false, dir)
	require.NoError(t, err)

	log.Info("Pipeline started", zap.String("run_id", "run-1"))
	_ = log.Sync()

	matches, err := filepath.Glob(filepath.Join(dir, "pipeline_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Pipeline started"`)
	assert.Contains(t, string(data), `"run_id":"run-1"`)
}

func TestLogFileName(t *testing.T) {
	assert.Equal(t, "pipeline_20240506_070809.log", LogFileName(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)))
}

func TestTiming(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	done := Timing(zap.New(core), "load")
	done()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Starting", entries[0].Message)
	assert.Equal(t, "Completed", entries[1].Message)
	assert.Equal(t, "load", entries[1].ContextMap()["operation"])

	assert.NotPanics(t, func() { Timing(nil, "noop")() })
}
