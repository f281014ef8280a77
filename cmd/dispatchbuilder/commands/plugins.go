package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"git.home.luguber.info/inful/dispatchbuilder/internal/metrics"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
)

// PluginsCmd implements the 'plugins' command.
type PluginsCmd struct{}

func (p *PluginsCmd) Run(g *Global, root *CLI) error {
	cfg, _, err := g.loadConfig(root)
	if err != nil {
		return err
	}
	reg, err := activatePlugins(g.ctx(), cfg, g.Logger, metrics.NoopRecorder{}, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = reg.Deactivate()
	}()
	return ListPlugins(os.Stdout, reg)
}

// ListPlugins writes one line per activated plugin with its configuration state.
func ListPlugins(w io.Writer, reg *plugin.Registry) error {
	skips := make(map[string]plugin.SkipReason)
	for _, s := range reg.ConfigSkips() {
		skips[s.Plugin] = s.Reason
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCATEGORY\tMODULE\tCONFIG")
	for _, category := range reg.Categories() {
		list, err := reg.GetByCategory(string(category))
		if err != nil {
			return err
		}
		for _, inst := range list {
			state := "bound"
			if reason, skipped := skips[inst.Name()]; skipped {
				state = string(reason)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inst.Name(), inst.Category, inst.Descriptor.Module, state)
		}
	}
	return tw.Flush()
}
