package events

import "time"

// TargetEvent is implemented by every event that belongs to a build target.
type TargetEvent interface {
	EventTarget() string
}

// BundleWritten is published each time a watch-build (or dev server) finished
// writing a successful bundle. The initial build of a watch session is
// published with Initial set.
type BundleWritten struct {
	Target   string
	Initial  bool
	Outputs  []string
	Duration time.Duration
	At       time.Time
}

func (e BundleWritten) EventTarget() string { return e.Target }

// BuildFailed is published when a rebuild of a watched target fails. The
// watch session keeps running and waits for the next change.
type BuildFailed struct {
	Target string
	Err    error
	At     time.Time
}

func (e BuildFailed) EventTarget() string { return e.Target }

// ServerReady is published once the renderer dev server listens.
type ServerReady struct {
	Target string
	URL    string
	At     time.Time
}

func (e ServerReady) EventTarget() string { return e.Target }

// ForTarget returns a match function for Handle selecting events of one target.
func ForTarget[T TargetEvent](target string) func(T) bool {
	return func(evt T) bool { return evt.EventTarget() == target }
}
