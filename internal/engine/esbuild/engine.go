// Package esbuild implements engine.Engine on top of the esbuild Go API.
//
// One-shot builds, watch-builds and the renderer dev server share the same
// translation from engine.UserConfig to esbuild options. Watching uses
// fsnotify on the project root; the dev server keeps its output in memory
// and pushes reloads to pages over server-sent events.
package esbuild

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/engine/configfile"
	"git.home.luguber.info/inful/tachyon/internal/events"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/metrics"
)

const (
	defaultDebounce = 100 * time.Millisecond
	defaultHost     = "localhost"
	defaultPort     = 5173
)

// Engine is the esbuild-backed build engine.
type Engine struct {
	bus      *events.Bus
	loader   engine.ConfigLoader
	recorder metrics.Recorder
	metrics  http.Handler
	debounce time.Duration
	banner   io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLoader replaces the config-file loader.
func WithLoader(l engine.ConfigLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithRecorder records build durations, outcomes and reload broadcasts.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithMetricsHandler exposes h on the dev server.
func WithMetricsHandler(h http.Handler) Option {
	return func(e *Engine) { e.metrics = h }
}

// WithURLBanner makes PrintURLs write a styled URL banner to w instead of
// logging the URLs.
func WithURLBanner(w io.Writer) Option {
	return func(e *Engine) { e.banner = w }
}

// WithDebounce sets the quiet period between a file change and the rebuild.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// New returns an Engine publishing build events on bus (which may be nil).
func New(bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		bus:      bus,
		recorder: metrics.NoopRecorder{},
		debounce: defaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ engine.Engine = (*Engine)(nil)

func loggerFor(ic engine.InlineConfig) *slog.Logger {
	logger := ic.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if ic.Target != "" {
		logger = logger.With(logfields.Target(ic.Target))
	}
	return logger
}

func (e *Engine) loaderFor(ic engine.InlineConfig) engine.ConfigLoader {
	if e.loader != nil {
		return e.loader
	}
	return configfile.NewLoader(loggerFor(ic))
}

// ResolveConfig implements engine.Engine.
func (e *Engine) ResolveConfig(_ context.Context, ic engine.InlineConfig, cmd engine.Command) (*engine.UserConfig, error) {
	return engine.ResolveUserConfig(e.loaderFor(ic), ic, cmd)
}

func (e *Engine) prepare(ctx context.Context, ic engine.InlineConfig, cmd engine.Command) (*plan, error) {
	cfg, err := e.ResolveConfig(ctx, ic, cmd)
	if err != nil {
		return nil, err
	}
	env, err := engine.LoadEnv(cfg.Mode, cfg.EnvDir, cfg.Root, cfg.EnvPrefix)
	if err != nil {
		return nil, err
	}
	return newPlan(cfg, cmd, env)
}

// Build implements engine.Engine.
func (e *Engine) Build(ctx context.Context, ic engine.InlineConfig) error {
	logger := loggerFor(ic)
	p, err := e.prepare(ctx, ic, engine.CommandBuild)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.prepareOutDir(logger); err != nil {
		return err
	}

	start := time.Now()
	result := api.Build(p.opts)
	elapsed := time.Since(start)
	e.recorder.ObserveBuildDuration(ic.Target, elapsed)
	if len(result.Errors) > 0 {
		e.recorder.IncBuildOutcome(ic.Target, metrics.OutcomeFailed)
		return buildFailure(ic.Target, result.Errors)
	}
	logMessages(logger, result.Warnings)

	if err := p.writeExtras(result.Metafile); err != nil {
		e.recorder.IncBuildOutcome(ic.Target, metrics.OutcomeFailed)
		return err
	}
	e.recorder.IncBuildOutcome(ic.Target, metrics.OutcomeSuccess)
	logger.Info("Build complete",
		logfields.Path(p.outDir),
		slog.Int("files", len(result.OutputFiles)),
		logfields.DurationMS(float64(elapsed.Milliseconds())))
	return nil
}

// writeExtras copies the public directory and writes HTML pages next to the
// bundles.
func (p *plan) writeExtras(meta string) error {
	if pub := p.publicDir(); pub != "" && !isWithin(pub, p.outDir) {
		if err := copyDir(pub, p.outDir); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "copy public directory").
				WithContext("path", pub).
				Build()
		}
	}
	if len(p.pages) == 0 {
		return nil
	}
	outputs := entryOutputs(p.cfg.Root, p.outDir, meta)
	for _, pg := range p.pages {
		target := filepath.Join(p.outDir, filepath.FromSlash(pg.rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create page directory").Build()
		}
		if err := os.WriteFile(target, []byte(pg.render(p.cfg.Base, outputs, "")), 0o644); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write page").
				WithContext("path", target).
				Build()
		}
	}
	return nil
}

func buildFailure(target string, msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	return ferrors.BuildError("build failed").
		WithContext("target", target).
		WithCause(errors.New(strings.TrimSpace(strings.Join(formatted, "")))).
		Build()
}

func logMessages(logger *slog.Logger, msgs []api.Message) {
	for _, m := range msgs {
		attrs := []any{}
		if m.Location != nil {
			attrs = append(attrs, logfields.Path(m.Location.File), slog.Int("line", m.Location.Line))
		}
		logger.Warn(m.Text, attrs...)
	}
}

func outputPaths(files []api.OutputFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func (e *Engine) publish(ctx context.Context, logger *slog.Logger, evt any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, evt); err != nil {
		logger.Debug("event not delivered", logfields.Error(err))
	}
}
