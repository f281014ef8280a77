package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dispatchbuilder/internal/config"
	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/dispatchbuilder/internal/history"
	"git.home.luguber.info/inful/dispatchbuilder/internal/retry"
)

// fakeClient issues sequential ids on create and remembers every request.
type fakeClient struct {
	nextID  int64
	creates []Request
	edits   []Request
	fail    map[string]error
}

func (f *fakeClient) Create(_ context.Context, req Request) ([]byte, error) {
	if err := f.fail[req.Name]; err != nil {
		return nil, err
	}
	f.creates = append(f.creates, req)
	f.nextID++
	return []byte(fmt.Sprintf(`<p class="info"><a href="page.html?id=%d">x</a></p>`, f.nextID)), nil
}

func (f *fakeClient) Edit(_ context.Context, req Request) ([]byte, error) {
	if err := f.fail[req.Name]; err != nil {
		return nil, err
	}
	f.edits = append(f.edits, req)
	return []byte("ok"), nil
}

type memoryHistory struct{ entries []history.Entry }

func (m *memoryHistory) Append(_ context.Context, e history.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestPublisher_PublishAll(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "weekly.tmpl", `{{.Dispatch.title}} #{{.Dispatch.id}} total={{.Data.total}} see {{(index .Dispatches "monthly").id}}`)
	writeTemplate(t, dir, "monthly.tmpl", `Monthly {{dispatchID "weekly"}}`)

	store := NewIDStore(filepath.Join(dir, "ids.json"), quietLogger())
	store.Set("monthly", 500)

	client := &fakeClient{nextID: 100}
	hist := &memoryHistory{}
	pub := NewPublisher(client, store,
		WithTemplatesDir(dir),
		WithHistory(hist),
		WithRunID("run-1"),
		WithPublisherLogger(quietLogger()))

	defs := Definitions{
		"weekly":  {"title": "Weekly", "template": "weekly.tmpl", "category": int64(1), "subcategory": int64(100)},
		"monthly": {"title": "Monthly", "template": "monthly.tmpl"},
	}

	report, err := pub.PublishAll(context.Background(), defs, map[string]any{"total": 3})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, []string{"weekly"}, report.Created)
	assert.Equal(t, []string{"monthly", "weekly"}, report.Edited)

	require.Len(t, client.creates, 1)
	assert.Equal(t, DefaultPlaceholder, client.creates[0].Text)
	assert.Equal(t, int64(1), client.creates[0].Category)
	assert.Equal(t, int64(100), client.creates[0].Subcategory)

	require.Len(t, client.edits, 2)
	assert.Equal(t, "Monthly 101", client.edits[0].Text)
	assert.Equal(t, int64(500), client.edits[0].ID)
	assert.Equal(t, "Weekly #101 total=3 see 500", client.edits[1].Text)
	assert.Equal(t, int64(101), client.edits[1].ID)

	id, err := store.Get("weekly")
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)
	assert.True(t, store.Dirty())

	require.Len(t, hist.entries, 3)
	assert.Equal(t, history.ActionCreate, hist.entries[0].Action)
	assert.Equal(t, int64(101), hist.entries[0].DispatchID)
	assert.Equal(t, "run-1", hist.entries[0].RunID)
	assert.NotContains(t, defs["weekly"], FieldID)
}

func TestPublisher_FailureIsIsolated(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "ok.tmpl", `fine`)

	store := NewIDStore(filepath.Join(dir, "ids.json"), quietLogger())
	client := &fakeClient{fail: map[string]error{"broken": assert.AnError}}
	hist := &memoryHistory{}
	pub := NewPublisher(client, store, WithTemplatesDir(dir), WithHistory(hist), WithPublisherLogger(quietLogger()))

	defs := Definitions{
		"broken": {"template": "ok.tmpl"},
		"good":   {"template": "ok.tmpl"},
		"notmpl": {"title": "No template"},
	}

	report, err := pub.PublishAll(context.Background(), defs, nil)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Contains(t, report.Failed, "broken")
	assert.Contains(t, report.Failed, "notmpl")
	assert.Equal(t, []string{"good"}, report.Edited)
	assert.ElementsMatch(t, []string{"good", "notmpl"}, report.Created)
	assert.False(t, store.Contains("broken"))

	require.NotEmpty(t, hist.entries)
	assert.Equal(t, "broken", hist.entries[0].Dispatch)
	assert.False(t, hist.entries[0].Succeeded())
}

func TestPublisher_RenderMissingKey(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "t.tmpl", `{{.Dispatch.absent}}`)
	pub := NewPublisher(&fakeClient{}, NewIDStore(filepath.Join(dir, "ids.json"), quietLogger()), WithTemplatesDir(dir))

	_, err := pub.Render(TemplateData{Name: "x", Dispatch: Context{"template": "t.tmpl"}})
	assert.Error(t, err)
}

func TestPublisher_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	store := NewIDStore(filepath.Join(dir, "ids.json"), quietLogger())
	pub := NewPublisher(&fakeClient{}, store, WithPublisherLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pub.PublishAll(ctx, Definitions{"a": {}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// flakyClient fails the first edits of every dispatch with a network error.
type flakyClient struct {
	fakeClient
	failures int
	attempts int
	at       []time.Time
}

func (f *flakyClient) Edit(ctx context.Context, req Request) ([]byte, error) {
	f.attempts++
	f.at = append(f.at, time.Now())
	if f.attempts <= f.failures {
		return nil, errors.NetworkError("upstream unavailable").Build()
	}
	return f.fakeClient.Edit(ctx, req)
}

func TestPublisher_RetriesTransientEdits(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "ok.tmpl", `ok`)
	store := NewIDStore(filepath.Join(dir, "ids.json"), quietLogger())
	store.Set("weekly", 7)

	client := &flakyClient{failures: 2}
	pub := NewPublisher(client, store,
		WithTemplatesDir(dir),
		WithRetry(retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)),
		WithPublisherLogger(quietLogger()))

	report, err := pub.PublishAll(context.Background(), Definitions{"weekly": {"template": "ok.tmpl"}}, nil)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 3, client.attempts)
	assert.Equal(t, []string{"weekly"}, report.Edited)
}

func TestPublisher_RetriesAreRateLimited(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "ok.tmpl", `ok`)
	store := NewIDStore(filepath.Join(dir, "ids.json"), quietLogger())
	store.Set("weekly", 7)

	interval := 50 * time.Millisecond
	client := &flakyClient{failures: 1}
	pub := NewPublisher(client, store,
		WithTemplatesDir(dir),
		WithInterval(interval),
		WithRetry(retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 1)),
		WithPublisherLogger(quietLogger()))

	report, err := pub.PublishAll(context.Background(), Definitions{"weekly": {"template": "ok.tmpl"}}, nil)
	require.NoError(t, err)
	assert.True(t, report.OK())
	require.Len(t, client.at, 2)
	assert.GreaterOrEqual(t, client.at[1].Sub(client.at[0]), interval-10*time.Millisecond)
}

func TestPublisher_NoRetryByDefault(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "ok.tmpl", `ok`)
	store := NewIDStore(filepath.Join(dir, "ids.json"), quietLogger())
	store.Set("weekly", 7)

	client := &flakyClient{failures: 1}
	pub := NewPublisher(client, store, WithTemplatesDir(dir), WithPublisherLogger(quietLogger()))

	report, err := pub.PublishAll(context.Background(), Definitions{"weekly": {"template": "ok.tmpl"}}, nil)
	require.NoError(t, err)
	assert.Contains(t, report.Failed, "weekly")
	assert.Equal(t, 1, client.attempts)
}
