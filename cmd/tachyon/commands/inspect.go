package commands

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/tachyon/internal/config"
	"git.home.luguber.info/inful/tachyon/internal/engine"
	"git.home.luguber.info/inful/tachyon/internal/engine/esbuild"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/orchestrator"
	"git.home.luguber.info/inful/tachyon/internal/pipeline"
)

// InspectCmd prints what a dev or build run would do without running it.
type InspectCmd struct {
	Root    string `arg:"" optional:"" help:"Project root directory."`
	Command string `name:"command" short:"c" enum:"dev,build" default:"dev" help:"Command whose defaults apply (${enum})."`
}

type inspectReport struct {
	Command           string          `yaml:"command"`
	Root              string          `yaml:"root"`
	Mode              string          `yaml:"mode"`
	LogLevel          string          `yaml:"logLevel"`
	AutoRestart       bool            `yaml:"autoRestart"`
	AutoReloadPreload bool            `yaml:"autoReloadPreload"`
	Targets           []inspectTarget `yaml:"targets"`
}

type inspectTarget struct {
	Target     string               `yaml:"target"`
	ConfigFile string               `yaml:"configFile"`
	Stages     []pipeline.StageName `yaml:"stages"`
	Config     *engine.UserConfig   `yaml:"config"`
}

func (i *InspectCmd) Run(g *Global, cli *CLI) error {
	report, err := inspect(context.Background(), g, cli.Raw(i.Root), orchestrator.Command(i.Command))
	if err != nil {
		return commandError("error when inspecting the project", err)
	}
	out, err := yaml.Marshal(report)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode inspect report").Build()
	}
	_, err = fmt.Fprint(g.Stdout, string(out))
	return err
}

func inspect(ctx context.Context, g *Global, raw config.RawConfig, cmd orchestrator.Command) (*inspectReport, error) {
	defaults := config.DevDefaults
	if cmd == orchestrator.CommandBuild {
		defaults = config.BuildDefaults
	}
	cfg, err := config.Resolve(raw, defaults)
	if err != nil {
		return nil, err
	}

	report := &inspectReport{
		Command:           string(cmd),
		Root:              cfg.Root(),
		Mode:              cfg.Mode(),
		LogLevel:          string(cfg.LogLevel()),
		AutoRestart:       cfg.AutoRestart(),
		AutoReloadPreload: cfg.AutoReloadPreload(),
	}
	eng := esbuild.New(nil)
	for _, p := range orchestrator.Plan(cfg, cmd, orchestrator.DescribeHooks(cfg)) {
		resolved, err := eng.ResolveConfig(ctx, p.Inline(cfg, g.Logger), cmd.EngineCommand(p.Target))
		if err != nil {
			return nil, err
		}
		report.Targets = append(report.Targets, inspectTarget{
			Target:     string(p.Target),
			ConfigFile: p.ConfigFile,
			Stages:     p.Pipeline.Stages(),
			Config:     resolved,
		})
	}
	return report, nil
}
