package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
)

// Build runs the one-shot production build of every enabled target.
type Build struct {
	cfg    *config.Resolved
	engine engine.Engine
	logger *slog.Logger
}

// NewBuild creates a build orchestrator.
func NewBuild(cfg *config.Resolved, eng engine.Engine, opts Options) *Build {
	return &Build{cfg: cfg, engine: eng, logger: opts.logger()}
}

// Run builds renderer, preload and main in that order. The first failure
// stops the sequence and is returned unchanged.
func (b *Build) Run(ctx context.Context) error {
	start := time.Now()
	plans := Plan(b.cfg, CommandBuild, Hooks{})
	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.engine.Build(ctx, p.Inline(b.cfg, b.logger)); err != nil {
			return err
		}
	}
	b.logger.Info("Project built",
		slog.Int("targets", len(plans)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return nil
}
