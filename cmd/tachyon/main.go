package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/tachyon/cmd/tachyon/commands"
	ferrors "git.home.luguber.info/inful/tachyon/internal/foundation/errors"
	"git.home.luguber.info/inful/tachyon/internal/version"
)

func main() {
	g := &commands.Global{Stdout: os.Stdout, Stderr: os.Stderr}
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("tachyon"),
		kong.Description("Development server and build orchestrator for Electron applications."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(g),
	)
	err := ctx.Run(g, &cli)
	ferrors.NewCLIErrorAdapter(g.Logger).HandleError(err)
}
