package dispatch

import (
	"log/slog"
	"sort"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/logfields"
)

// Well-known dispatch definition fields.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldTemplate    = "template"
	FieldCategory    = "category"
	FieldSubcategory = "subcategory"
)

// Definition holds the static fields of one dispatch.
type Definition map[string]any

// Definitions maps dispatch names to their definitions.
type Definitions map[string]Definition

// Names returns the dispatch names, sorted.
func (d Definitions) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a string field, or "" when absent or not a string.
func (d Definition) String(field string) string {
	s, _ := d[field].(string)
	return s
}

// LoadDefinitions reads dispatch definition files. Each top-level table of a
// file is one dispatch; a dispatch defined in several files takes the
// definition from the last one.
//
//	[weekly_report]
//	title = "Weekly report"
//	template = "weekly.tmpl"
//	category = 1
//	subcategory = 100
func LoadDefinitions(logger *slog.Logger, paths ...string) (Definitions, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defs := make(Definitions)
	for _, path := range paths {
		tree, err := config.LoadTree(path)
		if err != nil {
			return nil, err
		}
		for name, raw := range tree {
			table, ok := raw.(map[string]any)
			if !ok {
				return nil, errors.ValidationError("dispatch definition must be a table").
					WithContext("path", path).
					WithContext("dispatch", name).
					Build()
			}
			if _, exists := defs[name]; exists {
				logger.Debug("Dispatch definition overridden", logfields.Dispatch(name), logfields.Path(path))
			}
			defs[name] = Definition(table)
		}
		logger.Debug("Loaded dispatch definitions", logfields.Path(path), logfields.Count(len(tree)))
	}
	logger.Info("Loaded all dispatch definitions", logfields.Count(len(defs)))
	return defs, nil
}
