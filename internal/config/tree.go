package config

import (
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// Tree is a parsed TOML document. Nested tables are map[string]any,
// integers are int64 and arrays are []any, as decoded by go-toml.
type Tree map[string]any

// LoadTree reads and parses the TOML file at path.
// A missing file is reported as CategoryNotFound.
func LoadTree(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("config file not found").
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read config file").
			WithContext("path", path).
			Build()
	}

	tree, err := ParseTree(data)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse config file").
			WithContext("path", path).
			Build()
	}
	return tree, nil
}

// ParseTree parses TOML content.
func ParseTree(data []byte) (Tree, error) {
	tree := make(Tree)
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Lookup resolves a dotted path such as "Core.Name".
func (t Tree) Lookup(path string) (any, bool) {
	var current any = map[string]any(t)
	for _, part := range strings.Split(path, ".") {
		table, ok := asTable(current)
		if !ok {
			return nil, false
		}
		current, ok = table[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String resolves a dotted path to a string value.
func (t Tree) String(path string) (string, bool) {
	v, ok := t.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int resolves a dotted path to an integer value.
func (t Tree) Int(path string) (int64, bool) {
	v, ok := t.Lookup(path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Table resolves a dotted path to a nested table.
func (t Tree) Table(path string) (Tree, bool) {
	v, ok := t.Lookup(path)
	if !ok {
		return nil, false
	}
	table, ok := asTable(v)
	return table, ok
}

// Strings resolves a dotted path to a list of strings; non-string items are skipped.
func (t Tree) Strings(path string) []string {
	v, ok := t.Lookup(path)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func asTable(v any) (Tree, bool) {
	switch table := v.(type) {
	case Tree:
		return table, true
	case map[string]any:
		return Tree(table), true
	default:
		return nil, false
	}
}
