package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Dispatch string `arg:"" help:"Dispatch name"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	path := cfg.Resolve(cfg.History.Path)
	if path == "" {
		return errors.ConfigError("history.path is not configured").Build()
	}
	store, err := history.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	entries, err := store.ListByDispatch(g.ctx(), h.Dispatch)
	if err != nil {
		return err
	}
	return WriteHistory(os.Stdout, entries)
}

// WriteHistory prints entries as a table, oldest first.
func WriteHistory(w io.Writer, entries []history.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN\tACTION\tID\tRESULT")
	for _, e := range entries {
		result := "ok"
		if !e.Succeeded() {
			result = e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.RunID, e.Action, e.DispatchID, result)
	}
	return tw.Flush()
}
