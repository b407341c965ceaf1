package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/events"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/supervisor"
)

// MainMissingWarning is logged once when a dev session has no main target.
const MainMissingWarning = "Electron is not started because no main config file is found."

// HostSupervisor owns the host process of a dev session.
type HostSupervisor interface {
	EnsureFreshInstance(ctx context.Context, root string) (*supervisor.Instance, error)
	Shutdown()
	Exited() <-chan int
}

// Options carries the collaborators shared by both orchestrators.
type Options struct {
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Dev runs a development session.
type Dev struct {
	cfg    *config.Resolved
	engine engine.Engine
	bus    *events.Bus
	sup    HostSupervisor
	logger *slog.Logger
}

// NewDev creates a dev orchestrator. The supervisor is owned by the session
// for its whole lifetime.
func NewDev(cfg *config.Resolved, eng engine.Engine, bus *events.Bus, sup HostSupervisor, opts Options) *Dev {
	return &Dev{cfg: cfg, engine: eng, bus: bus, sup: sup, logger: opts.logger()}
}

// Run starts the session: the renderer dev server first, then the preload
// and main watch-builds. It returns once everything is started; on error the
// parts already started are torn down.
func (d *Dev) Run(ctx context.Context) (*Session, error) {
	s := &Session{
		logger: d.logger,
		sup:    d.sup,
		failed: make(chan error, 1),
	}

	hooks := Hooks{
		Reload:  s.reloadHook,
		Restart: d.restartHook(s),
	}
	if !d.cfg.AutoReloadPreload() {
		hooks.Reload = nil
	}
	if !d.cfg.AutoRestart() {
		hooks.Restart = nil
	}

	plans := Plan(d.cfg, CommandDev, hooks)
	if err := d.start(ctx, s, plans); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	if !slices.ContainsFunc(plans, func(p TargetPlan) bool { return p.Target == config.TargetMain }) {
		d.logger.Warn(MainMissingWarning)
	}
	return s, nil
}

func (d *Dev) start(ctx context.Context, s *Session, plans []TargetPlan) error {
	for _, p := range plans {
		ic := p.Inline(d.cfg, d.logger)
		if p.Target == config.TargetRenderer {
			if err := d.startServer(ctx, s, ic); err != nil {
				return err
			}
			continue
		}

		// Hooks must be listening before the watch publishes its initial bundle.
		s.track(p.Pipeline.Subscribe(ctx, d.bus, ic.Logger))
		w, err := d.engine.Watch(ctx, ic)
		if err != nil {
			return err
		}
		s.addWatcher(w)
	}
	return nil
}

func (d *Dev) startServer(ctx context.Context, s *Session, ic engine.InlineConfig) error {
	srv, err := d.engine.Serve(ctx, ic)
	if err != nil {
		return err
	}
	s.setServer(srv)
	if err := srv.Listen(ctx); err != nil {
		return err
	}

	if urls := srv.URLs(); len(urls.Local) > 0 {
		if err := os.Setenv(config.RendererServerURLVar, urls.Local[0]); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "publish renderer server url").Build()
		}
		d.logger.Debug("Renderer server published", logfields.URL(urls.Local[0]))
	}
	srv.PrintURLs()
	return nil
}

func (d *Dev) restartHook(s *Session) func(context.Context, events.BundleWritten) {
	return func(ctx context.Context, _ events.BundleWritten) {
		if _, err := d.sup.EnsureFreshInstance(ctx, d.cfg.Root()); err != nil {
			s.fail(err)
		}
	}
}

// Session is a running dev session.
type Session struct {
	logger *slog.Logger
	sup    HostSupervisor

	mu        sync.Mutex
	server    engine.DevServer
	watchers  []engine.Watcher
	unsubs    []func()
	failed    chan error
	closeOnce sync.Once
	closeErr  error
}

func (s *Session) setServer(srv engine.DevServer) {
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
}

func (s *Session) addWatcher(w engine.Watcher) {
	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()
}

func (s *Session) track(unsubscribe func()) {
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubscribe)
	s.mu.Unlock()
}

// Server returns the renderer dev server, or nil without a renderer.
func (s *Session) Server() engine.DevServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

func (s *Session) reloadHook(context.Context, events.BundleWritten) {
	if srv := s.Server(); srv != nil {
		srv.SendFullReload()
	}
}

func (s *Session) fail(err error) {
	select {
	case s.failed <- err:
	default:
	}
}

// Wait blocks until ctx is done, the host process exits or a hook fails. A
// host exit is returned as *errors.ExitStatus carrying its status.
func (s *Session) Wait(ctx context.Context) error {
	var exited <-chan int
	if s.sup != nil {
		exited = s.sup.Exited()
	}
	select {
	case <-ctx.Done():
		return nil
	case code := <-exited:
		return &ferrors.ExitStatus{Code: code}
	case err := <-s.failed:
		return err
	}
}

// Close stops the hooks, the watch-builds, the host process and the dev
// server, in that order. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubs, watchers, server := s.unsubs, s.watchers, s.server
		s.mu.Unlock()

		for _, unsubscribe := range unsubs {
			unsubscribe()
		}
		var errs []error
		for i := len(watchers) - 1; i >= 0; i-- {
			errs = append(errs, watchers[i].Close())
		}
		if s.sup != nil {
			s.sup.Shutdown()
		}
		if server != nil {
			errs = append(errs, server.Close(ctx))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
