package commands

import (
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/dispatchbuilder/internal/dispatch"
)

// IDsCmd groups the ID store subcommands.
type IDsCmd struct {
	List IDsListCmd `cmd:"" default:"1" help:"List stored dispatch IDs"`
	Set  IDsSetCmd  `cmd:"" help:"Set the ID of a dispatch"`
	Seed IDsSeedCmd `cmd:"" help:"Copy explicit ids from dispatch definitions into the store"`
}

// IDsListCmd implements 'ids list'.
type IDsListCmd struct{}

func (c *IDsListCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	store, err := dispatch.LoadIDStore(cfg.Resolve(cfg.Dispatches.IDStore), g.Logger)
	if err != nil {
		return err
	}
	return ListIDs(os.Stdout, store)
}

// ListIDs writes "name id" lines in name order, or a notice when the store is empty.
func ListIDs(w io.Writer, store *dispatch.IDStore) error {
	if store.Len() == 0 {
		_, err := fmt.Fprintln(w, "no dispatch IDs stored")
		return err
	}
	ids := store.Snapshot()
	for _, name := range store.Names() {
		if _, err := fmt.Fprintf(w, "%s %d\n", name, ids[name]); err != nil {
			return err
		}
	}
	return nil
}

// IDsSetCmd implements 'ids set'.
type IDsSetCmd struct {
	Name string `arg:"" help:"Dispatch name"`
	ID   int64  `arg:"" name:"id" help:"Dispatch ID"`
}

func (c *IDsSetCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	store, err := dispatch.LoadIDStore(cfg.Resolve(cfg.Dispatches.IDStore), g.Logger)
	if err != nil {
		return err
	}
	store.Set(c.Name, c.ID)
	return store.Save()
}

// IDsSeedCmd implements 'ids seed'.
type IDsSeedCmd struct{}

func (c *IDsSeedCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	paths := make([]string, len(cfg.Dispatches.Files))
	for i, f := range cfg.Dispatches.Files {
		paths[i] = cfg.Resolve(f)
	}
	defs, err := dispatch.LoadDefinitions(g.Logger, paths...)
	if err != nil {
		return err
	}
	store, err := dispatch.LoadIDStore(cfg.Resolve(cfg.Dispatches.IDStore), g.Logger)
	if err != nil {
		return err
	}
	if err := store.SeedFromDefinitions(defs); err != nil {
		return err
	}
	return store.Save()
}
