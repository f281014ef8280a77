// Package commands implements the dispatchbuilder command line.
package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
)

// Global is shared state passed to every command.
type Global struct {
	Context context.Context
	Logger  *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"dispatchbuilder.yaml" type:"path"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" help:"Run all plugins and publish dispatches"`
	Plugins PluginsCmd `cmd:"" help:"List discovered plugins and their configuration state"`
	IDs     IDsCmd     `cmd:"" name:"ids" help:"Inspect or edit the dispatch ID store"`
	Extract ExtractCmd `cmd:"" help:"Extract a dispatch ID from a saved server response"`
	History HistoryCmd `cmd:"" help:"Show publish history of a dispatch"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`
}

// AfterApply runs after flag parsing; sets up default logging until a config is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the configuration and replaces the global logger with one
// configured from it, tagged with a fresh run id.
func (g *Global) loadConfig(root *CLI) (*config.Config, string, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, "", err
	}
	runID := uuid.NewString()
	g.Logger = cfg.Logging.NewLogger(os.Stderr, root.Verbose).With(logfields.RunID(runID))
	slog.SetDefault(g.Logger)
	return cfg, runID, nil
}

func (g *Global) ctx() context.Context {
	if g.Context == nil {
		return context.Background()
	}
	return g.Context
}
