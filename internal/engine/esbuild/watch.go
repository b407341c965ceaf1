package esbuild

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/events"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/metrics"
)

// watchSession is a running watch-build.
type watchSession struct {
	engine *Engine
	target string
	plan   *plan
	bctx   api.BuildContext
	logger *slog.Logger
	graph  *moduleGraph
	tree   *treeWatcher
	mu     sync.Mutex
	once   sync.Once
}

// Watch implements engine.Engine. The initial build completes (and its
// BundleWritten event is delivered) before Watch returns.
func (e *Engine) Watch(ctx context.Context, ic engine.InlineConfig) (engine.Watcher, error) {
	logger := loggerFor(ic)
	p, err := e.prepare(ctx, ic, engine.CommandBuild)
	if err != nil {
		return nil, err
	}
	p.opts.Write = true

	bctx, cerr := api.Context(p.opts)
	if cerr != nil {
		return nil, buildFailure(ic.Target, cerr.Errors)
	}
	if err := p.prepareOutDir(logger); err != nil {
		bctx.Dispose()
		return nil, err
	}

	s := &watchSession{
		engine: e,
		target: ic.Target,
		plan:   p,
		bctx:   bctx,
		logger: logger,
		graph:  newModuleGraph(p.cfg.Root, nil),
	}
	if err := s.rebuild(ctx, true); err != nil {
		bctx.Dispose()
		return nil, err
	}

	debounce := e.debounce
	var exclude []string
	if w := p.cfg.Build.Watch; w != nil {
		exclude = w.Exclude
		if w.DebounceMS > 0 {
			debounce = time.Duration(w.DebounceMS) * time.Millisecond
		}
	}
	tree, err := watchTree(context.WithoutCancel(ctx), p.cfg.Root, ignoreFunc(p.cfg.Root, p.outDir, exclude), s.graph.Contains, debounce, logger,
		func(ctx context.Context) {
			logger.Info("Change detected; rebuilding")
			_ = s.rebuild(ctx, false)
		})
	if err != nil {
		bctx.Dispose()
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch project root").
			WithContext("path", p.cfg.Root).
			Build()
	}
	s.tree = tree
	logger.Info("Watching for file changes", logfields.Path(p.cfg.Root))
	return s, nil
}

// rebuild runs one build and publishes its outcome. Only the initial build
// returns its failure; later failures are reported and watching continues.
// A successful build narrows the watched files to the inputs it read.
func (s *watchSession) rebuild(ctx context.Context, initial bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.engine
	start := time.Now()
	result := s.bctx.Rebuild()
	elapsed := time.Since(start)
	e.recorder.ObserveBuildDuration(s.target, elapsed)

	if len(result.Errors) > 0 {
		s.graph.reset()
		err := buildFailure(s.target, result.Errors)
		e.recorder.IncBuildOutcome(s.target, metrics.OutcomeFailed)
		e.publish(ctx, s.logger, events.BuildFailed{Target: s.target, Err: err, At: time.Now()})
		if initial {
			return err
		}
		s.logger.Error("Rebuild failed", logfields.Error(err))
		return err
	}
	logMessages(s.logger, result.Warnings)
	s.graph.update(result.Metafile)
	if err := s.plan.writeExtras(result.Metafile); err != nil {
		e.recorder.IncBuildOutcome(s.target, metrics.OutcomeFailed)
		if !initial {
			s.logger.Error("Rebuild failed", logfields.Error(err))
		}
		return err
	}

	e.recorder.IncBuildOutcome(s.target, metrics.OutcomeSuccess)
	s.logger.Info("Bundle written",
		logfields.Path(s.plan.outDir),
		slog.Bool("initial", initial),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	e.publish(ctx, s.logger, events.BundleWritten{
		Target:   s.target,
		Initial:  initial,
		Outputs:  outputPaths(result.OutputFiles),
		Duration: elapsed,
		At:       time.Now(),
	})
	return nil
}

// Close stops watching and releases the build context.
func (s *watchSession) Close() error {
	var err error
	s.once.Do(func() {
		if s.tree != nil {
			err = s.tree.Close()
		}
		s.mu.Lock()
		s.bctx.Dispose()
		s.mu.Unlock()
	})
	return err
}
