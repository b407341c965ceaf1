// Package pipeline assembles the per-target decoration of an engine
// invocation: an ordered list of named stages. Config stages become engine
// plugins; hook stages react to the bundles the engine writes.
package pipeline

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/events"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/overlay"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageDefaultOverlay StageName = "default-overlay"
	StageExternalize    StageName = "externalize"
	StageReloadHook     StageName = "reload-hook"
	StageRestartHook    StageName = "restart-hook"
)

// Hook runs after the target wrote a bundle.
type Hook func(ctx context.Context, evt events.BundleWritten)

// Stage is one step of a target pipeline. Exactly one of Plugin or Hook is set.
type Stage struct {
	Name   StageName
	Plugin engine.Plugin
	Hook   Hook
}

// Pipeline is the immutable, ordered stage list of one target.
type Pipeline struct {
	target config.Target
	stages []Stage
}

// Target returns the target the pipeline decorates.
func (p *Pipeline) Target() config.Target { return p.target }

// Stages returns the stage names in order.
func (p *Pipeline) Stages() []StageName {
	names := make([]StageName, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name)
	}
	return names
}

// Plugins returns the engine plugins of the config stages, in order.
func (p *Pipeline) Plugins() []engine.Plugin {
	var out []engine.Plugin
	for _, s := range p.stages {
		if s.Plugin != nil {
			out = append(out, s.Plugin)
		}
	}
	return out
}

// HasHooks reports whether any stage reacts to written bundles.
func (p *Pipeline) HasHooks() bool {
	for _, s := range p.stages {
		if s.Hook != nil {
			return true
		}
	}
	return false
}

// Inline returns the engine invocation for the target.
func (p *Pipeline) Inline(configFile, mode string, logger *slog.Logger) engine.InlineConfig {
	return engine.InlineConfig{
		Target:     string(p.target),
		ConfigFile: configFile,
		Mode:       mode,
		Plugins:    p.Plugins(),
		Logger:     logger,
	}
}

// Subscribe attaches the hook stages to the bundles of the pipeline's target.
// It must be called before the watch starts so the initial bundle is seen.
// Hooks run sequentially on one goroutine; the returned function detaches
// them and waits for a running hook to return.
func (p *Pipeline) Subscribe(ctx context.Context, bus *events.Bus, logger *slog.Logger) func() {
	if !p.HasHooks() {
		return func() {}
	}
	hooks := make([]Stage, 0, len(p.stages))
	for _, s := range p.stages {
		if s.Hook != nil {
			hooks = append(hooks, s)
		}
	}
	return events.Handle(bus, 4, events.ForTarget[events.BundleWritten](string(p.target)), func(evt events.BundleWritten) {
		for _, s := range hooks {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Debug("Running hook", logfields.Target(evt.Target), logfields.Stage(string(s.Name)))
			}
			s.Hook(ctx, evt)
		}
	})
}

// Builder constructs a Pipeline stage by stage.
type Builder struct {
	p Pipeline
}

// NewBuilder starts an empty pipeline for target.
func NewBuilder(target config.Target) *Builder {
	return &Builder{p: Pipeline{target: target}}
}

// WithDefaults adds the default overlay merging defaults under the config file.
func (b *Builder) WithDefaults(defaults engine.UserConfig) *Builder {
	b.p.stages = append(b.p.stages, Stage{
		Name:   StageDefaultOverlay,
		Plugin: overlay.Defaults("tachyon:default-config:"+string(b.p.target), defaults),
	})
	return b
}

// WithExternalize adds forced externalization of host-runtime modules.
func (b *Builder) WithExternalize() *Builder {
	b.p.stages = append(b.p.stages, Stage{Name: StageExternalize, Plugin: overlay.Externalize()})
	return b
}

// WithReloadHook adds a hook that reloads the renderer. A nil fn is skipped,
// which is how a disabled option is expressed.
func (b *Builder) WithReloadHook(fn Hook) *Builder {
	return b.withHook(StageReloadHook, fn)
}

// WithRestartHook adds a hook that restarts the host process. A nil fn is
// skipped.
func (b *Builder) WithRestartHook(fn Hook) *Builder {
	return b.withHook(StageRestartHook, fn)
}

func (b *Builder) withHook(name StageName, fn Hook) *Builder {
	if fn != nil {
		b.p.stages = append(b.p.stages, Stage{Name: name, Hook: fn})
	}
	return b
}

// Build returns the assembled pipeline. The builder may be reused; later
// additions do not affect pipelines already built.
func (b *Builder) Build() *Pipeline {
	out := b.p
	out.stages = append([]Stage(nil), b.p.stages...)
	return &out
}
