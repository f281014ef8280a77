package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/dispatch"
	"git.home.luguber.info/inful/dispatchbuilder/internal/history"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin"
	"git.home.luguber.info/inful/dispatchbuilder/internal/plugin/builtin"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// fakeSite issues ids on create and records every form it receives.
type fakeSite struct {
	mu     sync.Mutex
	nextID int
	forms  []map[string]string
}

func (f *fakeSite) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = r.ParseForm()
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.forms = append(f.forms, form)
	if form["mode"] == "create" {
		f.nextID++
		fmt.Fprintf(w, `<p class="info">Published <a href="/page.html?id=%d">view</a></p>`, f.nextID)
	}
}

func setupProject(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	write(t, filepath.Join(dir, "plugins", "census", "census.plugin.toml"), `
Category = "Collector"
[Core]
Name = "census"
Module = "builtin/static"
ConfigFile = "census.toml"
`)
	write(t, filepath.Join(dir, "plugins", "census", "census.toml"), "[data]\nnations = 42\n")
	write(t, filepath.Join(dir, "plugins", "nations.plugin.toml"), `
Category = "Stat"
[Core]
Name = "nations"
Module = "builtin/select"
ConfigFile = "nations.toml"
`)
	write(t, filepath.Join(dir, "plugins", "nations.toml"), "from = \"census\"\npath = \"nations\"\n")
	write(t, filepath.Join(dir, "plugins", "report.plugin.toml"), `
Category = "View"
[Core]
Name = "report"
Module = "builtin/report"
ConfigFile = "report.toml"
`)
	write(t, filepath.Join(dir, "plugins", "report.toml"), fmt.Sprintf("output = %q\n", filepath.Join(dir, "out", "report.html")))

	write(t, filepath.Join(dir, "dispatches.toml"), `
[overview]
title = "Overview"
template = "overview.tmpl"
category = 1
subcategory = 100

[archive]
title = "Archive"
template = "archive.tmpl"
id = 900
`)
	write(t, filepath.Join(dir, "templates", "overview.tmpl"), `Nations: {{.Data.nations}}, archive {{dispatchID "archive"}}`)
	write(t, filepath.Join(dir, "templates", "archive.tmpl"), `{{title "see"}} {{(index .Dispatches "overview").id}}`)

	cfg := config.Default()
	cfg.Plugins.Directory = filepath.Join(dir, "plugins")
	cfg.Dispatches.Files = []string{filepath.Join(dir, "dispatches.toml")}
	cfg.Dispatches.IDStore = filepath.Join(dir, "dispatch_ids.json")
	cfg.Dispatches.TemplatesDir = filepath.Join(dir, "templates")
	cfg.Dispatches.Funcs = []string{"title"}
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Metrics.Textfile = filepath.Join(dir, "metrics.prom")
	cfg.Publish.Enabled = true
	cfg.Publish.Endpoint = endpoint
	cfg.Publish.Interval = -1
	cfg.Publish.Retry.Initial = time.Millisecond
	cfg.Publish.Retry.Max = time.Millisecond
	return cfg
}

func builtinModules() *plugin.ModuleTable {
	table := plugin.NewModuleTable()
	builtin.Register(table)
	return table
}

func TestExecute_EndToEnd(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(http.HandlerFunc(site.handler))
	defer srv.Close()

	cfg := setupProject(t, srv.URL)
	summary, err := Execute(context.Background(), cfg, RunOptions{
		RunID:   "run-1",
		Logger:  quietLogger(),
		Modules: builtinModules(),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Plugins)
	assert.Equal(t, int64(42), summary.Pipeline.Stats["nations"])
	assert.Equal(t, []string{"overview"}, summary.Publish.Created)
	assert.Equal(t, []string{"archive", "overview"}, summary.Publish.Edited)

	require.Len(t, site.forms, 3)
	assert.Equal(t, "create", site.forms[0]["mode"])
	assert.Equal(t, "Placeholder", site.forms[0]["text"])
	assert.Equal(t, "See 1", site.forms[1]["text"])
	assert.Equal(t, "900", site.forms[1]["id"])
	assert.Equal(t, "Nations: 42, archive 900", site.forms[2]["text"])
	assert.Equal(t, "1", site.forms[2]["id"])

	store, err := dispatch.LoadIDStore(cfg.Dispatches.IDStore, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"archive": 900, "overview": 1}, store.Snapshot())

	report, err := os.ReadFile(filepath.Join(filepath.Dir(cfg.Dispatches.IDStore), "out", "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "<td>nations</td>")

	hist, err := history.NewSQLiteStore(cfg.History.Path)
	require.NoError(t, err)
	defer func() { _ = hist.Close() }()
	entries, err := hist.ListByRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	metricsText, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "dispatchbuilder_publishes_total")

	// A second run only edits.
	_, err = Execute(context.Background(), cfg, RunOptions{Logger: quietLogger(), Modules: builtinModules()})
	require.NoError(t, err)
	require.Len(t, site.forms, 5)
	assert.Equal(t, "edit", site.forms[3]["mode"])
	assert.Equal(t, "edit", site.forms[4]["mode"])
}

func TestExecute_NoPublish(t *testing.T) {
	cfg := setupProject(t, "http://127.0.0.1:1")
	summary, err := Execute(context.Background(), cfg, RunOptions{
		Logger:    quietLogger(),
		Modules:   builtinModules(),
		NoPublish: true,
	})
	require.NoError(t, err)
	assert.Nil(t, summary.Publish)
	_, err = os.Stat(cfg.Dispatches.IDStore)
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_FailedDispatchStillSavesOthers(t *testing.T) {
	site := &fakeSite{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("title") == "Archive" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		site.handler(w, r)
	}))
	defer srv.Close()

	cfg := setupProject(t, srv.URL)
	summary, err := Execute(context.Background(), cfg, RunOptions{Logger: quietLogger(), Modules: builtinModules()})
	require.Error(t, err)
	require.NotNil(t, summary.Publish)
	assert.Contains(t, summary.Publish.Failed, "archive")

	store, err := dispatch.LoadIDStore(cfg.Dispatches.IDStore, quietLogger())
	require.NoError(t, err)
	assert.True(t, store.Contains("overview"))
}

func TestListPlugins(t *testing.T) {
	cfg := setupProject(t, "http://127.0.0.1:1")
	write(t, filepath.Join(cfg.Plugins.Directory, "bare.plugin.toml"), `
Category = "view"
[Core]
Name = "bare"
Module = "builtin/report"
`)
	reg, err := activatePlugins(context.Background(), cfg, quietLogger(), nil, builtinModules())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ListPlugins(&buf, reg))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, buf.String(), "census")
	assert.Regexp(t, `bare\s+View\s+builtin/report\s+no_config_file`, buf.String())
}

func TestListIDsAndHistory(t *testing.T) {
	store := dispatch.NewIDStore(filepath.Join(t.TempDir(), "ids.json"), quietLogger())
	store.Set("b", 2)
	store.Set("a", 1)

	var buf bytes.Buffer
	require.NoError(t, ListIDs(&buf, dispatch.NewIDStore(filepath.Join(t.TempDir(), "empty.json"), quietLogger())))
	assert.Equal(t, "no dispatch IDs stored\n", buf.String())

	buf.Reset()
	require.NoError(t, ListIDs(&buf, store))
	assert.Equal(t, "a 1\nb 2\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteHistory(&buf, []history.Entry{
		{RunID: "r1", Dispatch: "a", DispatchID: 1, Action: history.ActionCreate},
		{RunID: "r2", Dispatch: "a", Action: history.ActionEdit, Error: "rejected"},
	}))
	out := buf.String()
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "rejected")
}
