package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
)

// ExitStatus is returned when the session ends because the supervised host
// process exited. It is a termination signal rather than a failure: the CLI
// exits with Code and does not log anything.
type ExitStatus struct {
	Code int
}

func (e *ExitStatus) Error() string {
	return fmt.Sprintf("host process exited with status %d", e.Code)
}

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	logger *slog.Logger
	exit   func(code int)
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{logger: logger, exit: os.Exit}
}

// ExitCodeFor determines the exit code for an error. Every failure maps to 1;
// a propagated host exit keeps the host's status.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var status *ExitStatus
	if stderrors.As(err, &status) {
		return status.Code
	}
	return 1
}

// HandleError logs err (unless it is a propagated host exit) and exits the
// program with the appropriate code. A nil error is a no-op.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	var status *ExitStatus
	if !stderrors.As(err, &status) {
		a.logError(err)
	}
	a.exit(a.ExitCodeFor(err))
}

// logError logs an error with full diagnostic detail at its severity's level.
func (a *CLIErrorAdapter) logError(err error) {
	if classified, ok := AsClassified(err); ok {
		attrs := []slog.Attr{
			slog.String("category", string(classified.Category())),
			slog.String("error", fmt.Sprintf("%+v", err)),
		}
		for k, v := range classified.Context() {
			attrs = append(attrs, slog.Any(k, v))
		}
		a.logger.LogAttrs(context.Background(), a.slogLevelFromSeverity(classified.Severity()), classified.Message(), attrs...)
		return
	}
	a.logger.Error(err.Error())
}

// slogLevelFromSeverity converts ClassifiedError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError, SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
