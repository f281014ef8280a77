package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPlugin     = "plugin"
	KeyCategory   = "category"
	KeyModule     = "module"
	KeyReason     = "reason"
	KeyDispatch   = "dispatch"
	KeyDispatchID = "dispatch_id"
	KeyAction     = "action"
	KeyStage      = "stage"
	KeyPass       = "pass"
	KeyCount      = "count"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyStatus     = "status"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Plugin(name string) slog.Attr     { return slog.String(KeyPlugin, name) }
func Category(c string) slog.Attr      { return slog.String(KeyCategory, c) }
func Module(m string) slog.Attr        { return slog.String(KeyModule, m) }
func Reason(r string) slog.Attr        { return slog.String(KeyReason, r) }
func Dispatch(name string) slog.Attr   { return slog.String(KeyDispatch, name) }
func DispatchID(id int64) slog.Attr    { return slog.Int64(KeyDispatchID, id) }
func Action(a string) slog.Attr        { return slog.String(KeyAction, a) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Pass(n int) slog.Attr             { return slog.Int(KeyPass, n) }
func Count(n int) slog.Attr            { return slog.Int(KeyCount, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
