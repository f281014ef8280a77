// Package errors provides foundational, type-safe error primitives used across dispatchbuilder.
//
// This package contains classified error types and helpers for robust error handling,
// including a fluent builder API for constructing ClassifiedError values with context.
//
// Key features:
//   - ErrorCategory: Broad error classification (not found, not yet exist, invalid category, ...)
//   - ErrorSeverity: Impact level (fatal, error, warning, info)
//   - RetryStrategy: Retry behavior (never, immediate, backoff)
//   - ClassifiedError: Structured error with category, severity, and context
//   - ErrorBuilder: Fluent API for creating classified errors
//   - CLI adapter for exit codes and error presentation
//
// The two lookup-miss categories carry different retry semantics. CategoryNotFound
// is permanent (RetryNever): the key will not appear. CategoryNotYetExist is
// transient (RetryImmediate): the key may appear once more processing has run.
//
// Example usage:
//
//	err := errors.NotFound("dispatch id not found").
//		WithContext("dispatch", name).
//		Build()
package errors
