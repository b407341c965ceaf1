package metrics

import "time"

// Outcome labels the result of a single build.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder defines observability hooks for builds, host restarts and reload
// broadcasts.
type Recorder interface {
	ObserveBuildDuration(target string, d time.Duration)
	IncBuildOutcome(target string, outcome Outcome)
	IncHostRestart()
	IncHostExit(code int)
	IncReloadBroadcast()
	SetReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string, Outcome)            {}
func (NoopRecorder) IncHostRestart()                            {}
func (NoopRecorder) IncHostExit(int)                            {}
func (NoopRecorder) IncReloadBroadcast()                        {}
func (NoopRecorder) SetReloadClients(int)                       {}
