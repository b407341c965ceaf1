package config

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level    LogLevel
		wantInfo bool
		wantWarn bool
		wantErr  bool
	}{
		{LogLevelInfo, true, true, true},
		{LogLevelWarn, false, true, true},
		{LogLevelError, false, false, true},
		{LogLevelSilent, false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Info("info-line")
			logger.Warn("warn-line")
			logger.Error("error-line")

			out := buf.String()
			assert.Equal(t, tt.wantInfo, bytes.Contains([]byte(out), []byte("info-line")))
			assert.Equal(t, tt.wantWarn, bytes.Contains([]byte(out), []byte("warn-line")))
			assert.Equal(t, tt.wantErr, bytes.Contains([]byte(out), []byte("error-line")))
		})
	}
}

func TestLogLevelSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, LogLevelInfo.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogLevelWarn.SlogLevel())
	assert.Equal(t, slog.LevelError, LogLevelError.SlogLevel())
	assert.Greater(t, LogLevelSilent.SlogLevel(), slog.LevelError)
	assert.Equal(t, []string{"error", "info", "silent", "warn"}, LogLevelNames())
}
