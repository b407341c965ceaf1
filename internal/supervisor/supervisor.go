// Package supervisor owns the lifecycle of the desktop host process started
// during development. At most one instance is alive at a time; replacing it
// is always kill-then-spawn, and only the live instance may end the session
// by exiting.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/metrics"
)

// Instance is one spawned host process.
type Instance struct {
	ID  string
	PID int

	proc     Process
	detached atomic.Bool
	done     chan struct{}
	code     int
}

// Done is closed once the process has exited.
func (i *Instance) Done() <-chan struct{} { return i.done }

// ExitCode is valid after Done is closed.
func (i *Instance) ExitCode() int { return i.code }

// Detached reports whether the instance was replaced or shut down, in which
// case its exit is not propagated.
func (i *Instance) Detached() bool { return i.detached.Load() }

// Supervisor starts, replaces and stops the host process.
type Supervisor struct {
	spawner  Spawner
	resolve  func(root string) (string, error)
	recorder metrics.Recorder
	logger   *slog.Logger
	onExit   func(code int)

	mu      sync.Mutex
	current *Instance
	wg      sync.WaitGroup
	exited  chan int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSpawner replaces the OS process spawner.
func WithSpawner(sp Spawner) Option { return func(s *Supervisor) { s.spawner = sp } }

// WithResolver replaces the executable lookup (ResolveElectron by default).
func WithResolver(fn func(root string) (string, error)) Option {
	return func(s *Supervisor) { s.resolve = fn }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option { return func(s *Supervisor) { s.recorder = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.logger = l } }

// WithExitHandler sets the function called with the exit status of the live
// instance. Exits of replaced or shut down instances are never reported.
func WithExitHandler(fn func(code int)) Option { return func(s *Supervisor) { s.onExit = fn } }

// New creates a Supervisor with no running instance.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		spawner:  ExecSpawner{},
		resolve:  ResolveElectron,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		exited:   make(chan int, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureFreshInstance replaces any running instance with a new one started
// with root as its only argument. The previous instance is detached and
// force-killed without waiting for it to exit.
func (s *Supervisor) EnsureFreshInstance(ctx context.Context, root string) (*Instance, error) {
	exe, err := s.resolve(root)
	if err != nil {
		if _, ok := ferrors.AsClassified(err); ok {
			return nil, err
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryProcess, "resolve electron executable").
			WithContext("root", root).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prev := s.current; prev != nil {
		s.stopLocked(prev)
		s.recorder.IncHostRestart()
		s.logger.Info("Restarting electron", logfields.InstanceID(prev.ID))
	}

	proc, err := s.spawner.Spawn(exe, []string{root})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryProcess, "start electron").
			WithContext("executable", exe).
			Build()
	}

	inst := &Instance{ID: uuid.NewString(), PID: proc.PID(), proc: proc, done: make(chan struct{})}
	s.current = inst
	s.logger.Info("Electron started", logfields.InstanceID(inst.ID), logfields.PID(inst.PID))

	s.wg.Add(1)
	go s.wait(inst)
	return inst, nil
}

func (s *Supervisor) wait(inst *Instance) {
	defer s.wg.Done()
	inst.code = inst.proc.Wait()
	close(inst.done)

	if inst.detached.Load() {
		return
	}
	s.mu.Lock()
	if s.current == inst {
		s.current = nil
	}
	// Shutdown may have detached the instance while it was exiting.
	report := !inst.detached.Load()
	s.mu.Unlock()
	if !report {
		return
	}

	s.recorder.IncHostExit(inst.code)
	s.logger.Info("Electron exited", logfields.InstanceID(inst.ID), logfields.ExitCode(inst.code))
	if s.onExit != nil {
		s.onExit(inst.code)
	}
	select {
	case s.exited <- inst.code:
	default:
	}
}

// Exited delivers the exit status of a live instance that ended on its own.
func (s *Supervisor) Exited() <-chan int { return s.exited }

// stopLocked detaches and kills inst. Callers hold s.mu.
func (s *Supervisor) stopLocked(inst *Instance) {
	inst.detached.Store(true)
	if err := inst.proc.Kill(); err != nil {
		s.logger.Warn("Failed to kill electron", logfields.InstanceID(inst.ID), logfields.Error(err))
	}
	if s.current == inst {
		s.current = nil
	}
}

// Current returns the live instance, or nil.
func (s *Supervisor) Current() *Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Shutdown kills the live instance through the same path used on restart.
// Its exit is not reported.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if inst := s.current; inst != nil {
		s.stopLocked(inst)
		s.logger.Info("Electron stopped", logfields.InstanceID(inst.ID))
	}
	s.mu.Unlock()
}

// Wait blocks until every spawned instance has been reaped.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
