package builtin

import (
	"context"

	"git.home.luguber.info/inful/dispatchbuilder/internal/params"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
)

// Static is a Collector that returns the [data] table of its configuration.
// When the configuration names a service, the service value is added under "service".
//
//	service = "session"
//	[data]
//	region = "north"
type Static struct {
	plugin.BasePlugin
}

// Gather implements plugin.Collector.
func (s *Static) Gather(_ context.Context, services *params.Param[string, any]) (any, error) {
	cfg := s.Config()
	out := make(map[string]any)
	if data, ok := cfg.Table("data"); ok {
		for k, v := range data {
			out[k] = v
		}
	}

	if name, ok := cfg.String("service"); ok && name != "" {
		value, err := services.Get(name)
		if err != nil {
			return nil, err
		}
		out["service"] = value
	}
	return out, nil
}

// Constant is a Service that provides its configuration [value] table, or the
// whole configuration when the table is absent.
type Constant struct {
	plugin.BasePlugin
}

// Provide implements plugin.Service.
func (c *Constant) Provide(context.Context) (any, error) {
	cfg := c.Config()
	if value, ok := cfg.Table("value"); ok {
		return map[string]any(value), nil
	}
	if cfg == nil {
		return map[string]any{}, nil
	}
	return map[string]any(cfg), nil
}

var (
	_ plugin.Collector    = (*Static)(nil)
	_ plugin.Service      = (*Constant)(nil)
	_ plugin.Configurable = (*Static)(nil)
)
