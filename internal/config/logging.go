package config

import (
	"io"
	"log/slog"

	"git.home.luguber.info/inful/tachyon/internal/foundation/normalization"
)

// LogLevel is the operator-facing verbosity.
type LogLevel string

const (
	LogLevelInfo   LogLevel = "info"
	LogLevelWarn   LogLevel = "warn"
	LogLevelError  LogLevel = "error"
	LogLevelSilent LogLevel = "silent"
)

var logLevelNormalizer = normalization.NewNormalizer("log level", map[string]LogLevel{
	"info":   LogLevelInfo,
	"warn":   LogLevelWarn,
	"error":  LogLevelError,
	"silent": LogLevelSilent,
}, LogLevelInfo)

// ParseLogLevel parses a log level; empty input means info.
func ParseLogLevel(raw string) (LogLevel, error) {
	return logLevelNormalizer.Parse(raw)
}

// LogLevelNames lists the accepted log level names.
func LogLevelNames() []string {
	return logLevelNormalizer.ValidKeys()
}

// SlogLevel maps the level onto slog. Silent maps above error so nothing passes.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	case LogLevelSilent:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the session logger writing text records to w.
func NewLogger(level LogLevel, w io.Writer) *slog.Logger {
	if level == LogLevelSilent {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.SlogLevel()}))
}
