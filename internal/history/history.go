// Package history keeps a durable log of publish attempts so a run can be
// audited after the fact.
package history

import (
	"context"
	"time"
)

// Action names the kind of publish attempt.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
)

// Entry is one publish attempt.
type Entry struct {
	Seq        int64
	RunID      string
	Dispatch   string
	DispatchID int64 // zero when a create failed before an id was issued
	Action     Action
	Timestamp  time.Time
	// Error is empty for successful attempts.
	Error string
}

// Succeeded reports whether the attempt completed without error.
func (e Entry) Succeeded() bool {
	return e.Error == ""
}

// Recorder appends publish attempts.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
}

// Noop discards entries; it is used when no history database is configured.
type Noop struct{}

// Append implements Recorder.
func (Noop) Append(context.Context, Entry) error { return nil }
