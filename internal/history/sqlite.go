package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// SQLiteStore persists entries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryHistory, "open history database").
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, errors.WrapError(err, errors.CategoryHistory, "initialize history schema").
			WithContext("path", dbPath).
			Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS publishes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		dispatch TEXT NOT NULL,
		dispatch_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_publishes_dispatch ON publishes(dispatch);
	CREATE INDEX IF NOT EXISTS idx_publishes_run ON publishes(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append implements Recorder. A zero Timestamp is replaced with the current time.
func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO publishes (run_id, dispatch, dispatch_id, action, timestamp, error) VALUES (?, ?, ?, ?, ?, ?)",
		entry.RunID, entry.Dispatch, entry.DispatchID, string(entry.Action), entry.Timestamp.UnixNano(), entry.Error,
	)
	if err != nil {
		return errors.WrapError(err, errors.CategoryHistory, "insert publish entry").
			WithContext("dispatch", entry.Dispatch).
			Build()
	}
	return nil
}

// ListByDispatch returns the attempts for dispatch, oldest first.
func (s *SQLiteStore) ListByDispatch(ctx context.Context, dispatch string) ([]Entry, error) {
	return s.query(ctx, "WHERE dispatch = ?", dispatch)
}

// ListByRun returns the attempts made during run, oldest first.
func (s *SQLiteStore) ListByRun(ctx context.Context, runID string) ([]Entry, error) {
	return s.query(ctx, "WHERE run_id = ?", runID)
}

func (s *SQLiteStore) query(ctx context.Context, where string, arg any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, run_id, dispatch, dispatch_id, action, timestamp, error FROM publishes "+where+" ORDER BY seq",
		arg,
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryHistory, "query publish entries").Build()
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
			nanos  int64
		)
		if err := rows.Scan(&e.Seq, &e.RunID, &e.Dispatch, &e.DispatchID, &action, &nanos, &e.Error); err != nil {
			return nil, errors.WrapError(err, errors.CategoryHistory, "scan publish entry").Build()
		}
		e.Action = Action(action)
		e.Timestamp = time.Unix(0, nanos)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, errors.CategoryHistory, "iterate publish entries").Build()
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Recorder = (*SQLiteStore)(nil)
