package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, ":memory:")

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, Entry{RunID: "r1", Dispatch: "weekly", DispatchID: 42, Action: ActionCreate, Timestamp: ts}))
	require.NoError(t, store.Append(ctx, Entry{RunID: "r1", Dispatch: "monthly", Action: ActionCreate, Error: "rejected"}))
	require.NoError(t, store.Append(ctx, Entry{RunID: "r2", Dispatch: "weekly", DispatchID: 42, Action: ActionEdit}))

	weekly, err := store.ListByDispatch(ctx, "weekly")
	require.NoError(t, err)
	require.Len(t, weekly, 2)
	assert.Equal(t, ActionCreate, weekly[0].Action)
	assert.Equal(t, int64(42), weekly[0].DispatchID)
	assert.True(t, weekly[0].Timestamp.Equal(ts))
	assert.True(t, weekly[0].Succeeded())
	assert.Equal(t, ActionEdit, weekly[1].Action)
	assert.Less(t, weekly[0].Seq, weekly[1].Seq)

	run, err := store.ListByRun(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, run, 2)
	assert.Equal(t, "monthly", run[1].Dispatch)
	assert.False(t, run[1].Succeeded())
	assert.False(t, run[1].Timestamp.IsZero())

	none, err := store.ListByDispatch(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(ctx, Entry{RunID: "r1", Dispatch: "weekly", DispatchID: 7, Action: ActionEdit}))
	require.NoError(t, first.Close())

	second := newTestStore(t, path)
	entries, err := second.ListByDispatch(ctx, "weekly")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].DispatchID)
}

func TestNoop(t *testing.T) {
	var r Recorder = Noop{}
	assert.NoError(t, r.Append(context.Background(), Entry{}))
}
