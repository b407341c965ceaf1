package commands

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/tachyon/internal/config"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
)

// Global carries state shared with every subcommand.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// CLI definition & global flags. Global flags may appear after the
// subcommand, e.g. `tachyon build -m staging`.
type CLI struct {
	Mode      string           `short:"m" help:"Set env mode."`
	LogLevel  string           `short:"l" name:"logLevel" enum:"info,warn,error,silent" default:"info" help:"Log level (${enum})."`
	EnvDir    string           `name:"env-dir" placeholder:"DIR" help:"Directory to load .env files from (defaults to the project root)."`
	NoEnvDir  bool             `name:"no-env-dir" help:"Do not load .env files."`
	EnvPrefix []string         `name:"env-prefix" sep:"none" placeholder:"PREFIX" help:"Env variable prefix exposed to client code (repeatable)."`
	Configs   ConfigFlags      `embed:"" prefix:"config."`
	Version   kong.VersionFlag `name:"version" short:"v" help:"Show version and exit."`

	Dev     DevCmd     `cmd:"" default:"withargs" help:"Start the development server."`
	Build   BuildCmd   `cmd:"" help:"Build the project."`
	Inspect InspectCmd `cmd:"" help:"Print the resolved configuration and per-target pipelines."`
}

// ConfigFlags overrides the conventional config file of each target. The
// value "false" disables the target.
type ConfigFlags struct {
	Main     string `name:"main" placeholder:"FILE" help:"Main process config file, or false to disable."`
	Preload  string `name:"preload" placeholder:"FILE" help:"Preload script config file, or false to disable."`
	Renderer string `name:"renderer" placeholder:"FILE" help:"Renderer config file, or false to disable."`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	level, err := config.ParseLogLevel(c.LogLevel)
	if err != nil {
		return err
	}
	if g.Stdout == nil {
		g.Stdout = os.Stdout
	}
	if g.Stderr == nil {
		g.Stderr = os.Stderr
	}
	g.Logger = config.NewLogger(level, g.Stderr)
	slog.SetDefault(g.Logger)
	return nil
}

// Raw collects the global flags and the command's root argument into the
// unresolved configuration.
func (c *CLI) Raw(root string) config.RawConfig {
	raw := config.RawConfig{
		Root:      root,
		Mode:      c.Mode,
		LogLevel:  c.LogLevel,
		EnvPrefix: c.EnvPrefix,
		ConfigFiles: config.ConfigFiles{
			Main:     fileRef(c.Configs.Main),
			Preload:  fileRef(c.Configs.Preload),
			Renderer: fileRef(c.Configs.Renderer),
		},
	}
	switch {
	case c.NoEnvDir || strings.EqualFold(c.EnvDir, "false"):
		raw.EnvDir = config.EnvDir{Disabled: true}
	case c.EnvDir != "":
		raw.EnvDir = config.EnvDir{Path: c.EnvDir}
	}
	return raw
}

func fileRef(v string) config.FileRef {
	switch {
	case strings.EqualFold(v, "false"):
		return config.Disable()
	case v == "":
		return config.FileRef{}
	default:
		return config.File(v)
	}
}

// commandError prefixes a command failure the way it is reported to the
// operator. A propagated host exit passes through untouched.
func commandError(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var status *ferrors.ExitStatus
	if errors.As(err, &status) {
		return status
	}
	return ferrors.WrapError(err, ferrors.GetCategory(err), prefix).Build()
}
