package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine/esbuild"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/orchestrator"
)

// BuildCmd builds renderer, preload and main for production.
type BuildCmd struct {
	Root string `arg:"" optional:"" help:"Project root directory."`
}

func (b *BuildCmd) Run(g *Global, cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return commandError("error when building the project", runBuild(ctx, g, cli.Raw(b.Root)))
}

func runBuild(ctx context.Context, g *Global, raw config.RawConfig) error {
	cfg, err := config.Resolve(raw, config.BuildDefaults)
	if err != nil {
		return err
	}
	eng := esbuild.New(nil)
	logger := g.Logger.With(logfields.Mode(cfg.Mode()))
	return orchestrator.NewBuild(cfg, eng, orchestrator.Options{Logger: logger}).Run(ctx)
}
