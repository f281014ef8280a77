package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

func TestCompose_Strict(t *testing.T) {
	defs := Definitions{"a": {"title": "A"}}
	store := NewIDStore(filepath.Join(t.TempDir(), "ids.json"), quietLogger())

	out, err := Compose(defs, store)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.IsNotFound(err))

	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	name, _ := ce.Context().GetString("dispatch")
	assert.Equal(t, "a", name)
}

func TestCompose_FirstMissingInSortedOrder(t *testing.T) {
	defs := Definitions{"c": {}, "b": {}, "a": {}}
	store := NewIDStore(filepath.Join(t.TempDir(), "ids.json"), quietLogger())
	store.Set("a", 1)

	_, err := Compose(defs, store)
	require.Error(t, err)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	name, _ := ce.Context().GetString("dispatch")
	assert.Equal(t, "b", name)
}

func TestCompose_AugmentsWithID(t *testing.T) {
	defs := Definitions{"a": {
		"title": "A",
		"tags":  []any{"x", map[string]any{"k": "v"}},
		"meta":  map[string]any{"author": "ops"},
	}}
	store := NewIDStore(filepath.Join(t.TempDir(), "ids.json"), quietLogger())
	store.Set("a", 5)

	out, err := Compose(defs, store)
	require.NoError(t, err)
	require.Contains(t, out, "a")
	assert.Equal(t, int64(5), out["a"][FieldID])
	assert.Equal(t, int64(5), out["a"].ID())
	assert.Equal(t, "A", out["a"].String("title"))

	out["a"]["meta"].(map[string]any)["author"] = "changed"
	out["a"]["tags"].([]any)[1].(map[string]any)["k"] = "changed"

	assert.NotContains(t, defs["a"], FieldID)
	assert.Equal(t, "ops", defs["a"]["meta"].(map[string]any)["author"])
	assert.Equal(t, "v", defs["a"]["tags"].([]any)[1].(map[string]any)["k"])
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.toml")
	second := filepath.Join(dir, "second.toml")
	require.NoError(t, os.WriteFile(first, []byte(`
[weekly]
title = "Weekly"
template = "weekly.tmpl"
category = 1

[monthly]
title = "Monthly"
id = 12
`), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(`
[weekly]
title = "Weekly v2"
template = "weekly.tmpl"
`), 0o600))

	defs, err := LoadDefinitions(quietLogger(), first, second)
	require.NoError(t, err)

	assert.Equal(t, []string{"monthly", "weekly"}, defs.Names())
	assert.Equal(t, "Weekly v2", defs["weekly"].String(FieldTitle))
	assert.NotContains(t, defs["weekly"], FieldCategory)
	assert.Equal(t, int64(12), defs["monthly"][FieldID])
}

func TestLoadDefinitions_Errors(t *testing.T) {
	dir := t.TempDir()
	scalar := filepath.Join(dir, "scalar.toml")
	require.NoError(t, os.WriteFile(scalar, []byte("weekly = 1\n"), 0o600))

	_, err := LoadDefinitions(quietLogger(), scalar)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	_, err = LoadDefinitions(quietLogger(), filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
