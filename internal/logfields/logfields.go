package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTarget     = "target"
	KeyConfigFile = "config_file"
	KeyStage      = "stage"
	KeyURL        = "url"
	KeyPID        = "pid"
	KeyInstanceID = "instance_id"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyMode       = "mode"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Target(name string) slog.Attr    { return slog.String(KeyTarget, name) }
func ConfigFile(p string) slog.Attr   { return slog.String(KeyConfigFile, p) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func PID(pid int) slog.Attr           { return slog.Int(KeyPID, pid) }
func InstanceID(id string) slog.Attr  { return slog.String(KeyInstanceID, id) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Mode(m string) slog.Attr         { return slog.String(KeyMode, m) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
