package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine/esbuild"
	"git.home.luguber.info/inful/tachyon/internal/events"
	"git.home.luguber.info/inful/tachyon/internal/logfields"
	"git.home.luguber.info/inful/tachyon/internal/metrics"
	"git.home.luguber.info/inful/tachyon/internal/orchestrator"
	"git.home.luguber.info/inful/tachyon/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// DevCmd starts the renderer dev server, watches preload and main and keeps
// the Electron process in sync.
type DevCmd struct {
	Root              string `arg:"" optional:"" help:"Project root directory."`
	AutoRestart       bool   `name:"auto-restart" default:"true" negatable:"" help:"Restart the main process when it is rebuilt."`
	AutoReloadPreload bool   `name:"auto-reload-preload" default:"true" negatable:"" help:"Reload the renderer when preload scripts are rebuilt."`
}

func (d *DevCmd) Run(g *Global, cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	raw := cli.Raw(d.Root)
	raw.AutoRestart = &d.AutoRestart
	raw.AutoReloadPreload = &d.AutoReloadPreload
	return commandError("error when starting dev server", runDev(ctx, g, raw))
}

func runDev(ctx context.Context, g *Global, raw config.RawConfig) error {
	cfg, err := config.Resolve(raw, config.DevDefaults)
	if err != nil {
		return err
	}
	logger := g.Logger.With(logfields.Mode(cfg.Mode()))

	bus := events.NewBus()
	defer bus.Close()

	recorder := metrics.NewPrometheusRecorder(prometheus.NewRegistry())
	eng := esbuild.New(bus,
		esbuild.WithRecorder(recorder),
		esbuild.WithMetricsHandler(recorder.Handler()),
		esbuild.WithURLBanner(g.Stdout))
	sup := supervisor.New(
		supervisor.WithRecorder(recorder),
		supervisor.WithLogger(logger))

	session, err := orchestrator.NewDev(cfg, eng, bus, sup, orchestrator.Options{Logger: logger}).Run(ctx)
	if err != nil {
		return err
	}

	waitErr := session.Wait(ctx)
	if ctx.Err() != nil {
		logger.Info("Shutting down")
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Warn("Shutdown incomplete", logfields.Error(err))
	}
	sup.Wait()
	return waitErr
}
