// Package orchestrator drives the three targets through the build engine: a
// one-shot production build, or a development session made of the renderer
// dev server, the preload and main watch-builds and the supervised host
// process.
package orchestrator

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/events"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/pipeline"
)

// Command selects which set of per-target defaults applies.
type Command string

const (
	CommandDev   Command = "dev"
	CommandBuild Command = "build"
)

// EngineCommand is the engine entry point a target is loaded for.
func (c Command) EngineCommand(t config.Target) engine.Command {
	if c == CommandDev && t == config.TargetRenderer {
		return engine.CommandServe
	}
	return engine.CommandBuild
}

var nodeMainFields = []string{"module", "jsnext:source", "jsnext:main"}

// SharedDefaults are the settings every target inherits from the resolved
// configuration.
func SharedDefaults(cfg *config.Resolved) engine.UserConfig {
	envDir := cfg.EnvDir()
	return engine.UserConfig{
		Root:      cfg.Root(),
		Mode:      cfg.Mode(),
		LogLevel:  string(cfg.LogLevel()),
		EnvDir:    engine.PathOption{Path: envDir.Path, Disabled: envDir.Disabled},
		EnvPrefix: cfg.EnvPrefix(),
	}
}

// TargetDefaults returns the defaults merged underneath t's config file.
func TargetDefaults(cfg *config.Resolved, cmd Command, t config.Target) engine.UserConfig {
	d := SharedDefaults(cfg)
	dev := cmd == CommandDev

	switch t {
	case config.TargetRenderer:
		if !dev {
			d.Base = "./"
		}
		return d
	case config.TargetPreload:
		d.Build.Input = []string{"src/preload.ts"}
		d.Build.Output = engine.OutputOptions{
			Format:               "cjs",
			InlineDynamicImports: engine.ToggleOn,
			EntryFileNames:       "[name].js",
		}
	case config.TargetMain:
		d.Build.Lib = &engine.LibOptions{
			Entry:    "src/main.ts",
			Formats:  []string{"cjs"},
			FileName: "[name]",
		}
	}

	d.PublicDir = engine.DisabledPath()
	d.Build.OutDir = "dist"
	d.Build.EmptyOutDir = engine.ToggleOff
	d.Resolve = engine.ResolveOptions{
		Conditions: []string{"node"},
		MainFields: append([]string(nil), nodeMainFields...),
	}
	if dev {
		d.Build.Watch = &engine.WatchOptions{}
		d.Build.Sourcemap = engine.SourcemapInline
		d.Build.Minify = engine.ToggleOff
	}
	return d
}

// Hooks are the dev-only reactions to written bundles. A nil hook is left
// out of the pipeline.
type Hooks struct {
	Reload  pipeline.Hook
	Restart pipeline.Hook
}

// NewPipeline assembles the stage list of t.
func NewPipeline(cfg *config.Resolved, cmd Command, t config.Target, hooks Hooks) *pipeline.Pipeline {
	b := pipeline.NewBuilder(t).WithDefaults(TargetDefaults(cfg, cmd, t))
	if t == config.TargetRenderer {
		return b.Build()
	}
	b.WithExternalize()
	if cmd == CommandDev {
		switch t {
		case config.TargetPreload:
			b.WithReloadHook(hooks.Reload)
		case config.TargetMain:
			b.WithRestartHook(hooks.Restart)
		}
	}
	return b.Build()
}

// TargetPlan is one enabled target with its config file and pipeline.
type TargetPlan struct {
	Target     config.Target
	ConfigFile string
	Pipeline   *pipeline.Pipeline
}

// Inline returns the engine invocation of the plan.
func (p TargetPlan) Inline(cfg *config.Resolved, logger *slog.Logger) engine.InlineConfig {
	return p.Pipeline.Inline(p.ConfigFile, cfg.Mode(), logger.With(logfields.Target(string(p.Target))))
}

// Plan lists the enabled targets in build order.
func Plan(cfg *config.Resolved, cmd Command, hooks Hooks) []TargetPlan {
	var plans []TargetPlan
	for _, t := range cfg.Enabled() {
		file, _ := cfg.ConfigFile(t)
		plans = append(plans, TargetPlan{Target: t, ConfigFile: file, Pipeline: NewPipeline(cfg, cmd, t, hooks)})
	}
	return plans
}

// DescribeHooks returns placeholder hooks for the options enabled in cfg, so
// an inspected dev pipeline lists the same stages a session would run.
func DescribeHooks(cfg *config.Resolved) Hooks {
	var h Hooks
	noop := pipeline.Hook(func(_ context.Context, _ events.BundleWritten) {})
	if cfg.AutoReloadPreload() {
		h.Reload = noop
	}
	if cfg.AutoRestart() {
		h.Restart = noop
	}
	return h
}
