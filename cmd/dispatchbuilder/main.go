package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dispatchbuilder/cmd/dispatchbuilder/commands"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	_ "git.home.luguber.info/inful/dispatchbuilder/internal/plugin/builtin"
	"git.home.luguber.info/inful/dispatchbuilder/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("dispatchbuilder"),
		kong.Description("Run collector, stat and view plugins and publish dispatches."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global := &commands.Global{Context: ctx, Logger: slog.Default()}
	err := parser.Run(global, cli)
	stop()
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
