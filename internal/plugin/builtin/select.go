package builtin

import (
	"context"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/params"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
)

// Select is a Stat that picks a value out of a collector result or out of
// another stat's result.
//
//	from = "census"      # collector name
//	stat = "totals"      # or: another stat, retried until it exists
//	path = "regions.north"
type Select struct {
	plugin.BasePlugin
}

// ValidateConfig implements plugin.ConfigValidator.
func (s *Select) ValidateConfig(cfg config.Tree) error {
	stat, _ := cfg.String("stat")
	from, _ := cfg.String("from")
	if stat == "" && from == "" {
		return errors.ConfigError("select requires either 'from' or 'stat'").Build()
	}
	return nil
}

// Compute implements plugin.Stat.
func (s *Select) Compute(_ context.Context, collected, computed *params.Param[string, any]) (any, error) {
	cfg := s.Config()

	var (
		source any
		err    error
	)
	if stat, ok := cfg.String("stat"); ok && stat != "" {
		source, err = computed.Get(stat)
	} else if from, ok := cfg.String("from"); ok && from != "" {
		source, err = collected.Get(from)
	} else {
		return nil, errors.ConfigError("select requires either 'from' or 'stat'").Build()
	}
	if err != nil {
		return nil, err
	}

	path, ok := cfg.String("path")
	if !ok || path == "" {
		return source, nil
	}

	table, ok := source.(map[string]any)
	if !ok {
		if tree, isTree := source.(config.Tree); isTree {
			table, ok = tree, true
		}
	}
	if !ok {
		return nil, errors.NotFound("select source is not a table").
			WithContext("path", path).
			Build()
	}

	value, found := config.Tree(table).Lookup(path)
	if !found {
		return nil, errors.NotFound("select path not found").
			WithContext("path", path).
			Build()
	}
	return value, nil
}

var (
	_ plugin.Stat            = (*Select)(nil)
	_ plugin.ConfigValidator = (*Select)(nil)
)
