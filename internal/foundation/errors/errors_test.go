package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderCarriesClassification(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapError(cause, CategoryNetwork, "publish request failed").
		Warning().
		Retryable().
		WithContext("dispatch", "weekly").
		WithContext("status", 502).
		Build()

	assert.Equal(t, CategoryNetwork, err.Category())
	assert.Equal(t, SeverityWarning, err.Severity())
	assert.Equal(t, RetryBackoff, err.RetryStrategy())
	assert.Equal(t, "publish request failed", err.Message())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[network:warning] publish request failed: connection reset", err.Error())

	name, ok := err.Context().GetString("dispatch")
	require.True(t, ok)
	assert.Equal(t, "weekly", name)
	_, ok = err.Context().GetString("status")
	assert.False(t, ok, "non-string values are not returned by GetString")
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		severity ErrorSeverity
		retry    RetryStrategy
	}{
		{"ConfigError", ConfigError("x"), CategoryConfig, SeverityFatal, RetryNever},
		{"ValidationError", ValidationError("x"), CategoryValidation, SeverityFatal, RetryNever},
		{"NotFound", NotFound("x"), CategoryNotFound, SeverityError, RetryNever},
		{"NotYetExist", NotYetExist("x"), CategoryNotYetExist, SeverityError, RetryImmediate},
		{"InvalidCategory", InvalidCategory("x"), CategoryInvalidCategory, SeverityFatal, RetryNever},
		{"ConfigLoadError", ConfigLoadError("x"), CategoryConfigLoad, SeverityWarning, RetryNever},
		{"ExtractionError", ExtractionError("x"), CategoryExtraction, SeverityError, RetryNever},
		{"NetworkError", NetworkError("x"), CategoryNetwork, SeverityError, RetryBackoff},
		{"FileSystemError", FileSystemError("x"), CategoryFileSystem, SeverityError, RetryBackoff},
		{"HistoryError", HistoryError("x"), CategoryHistory, SeverityError, RetryNever},
		{"PluginError", PluginError("x"), CategoryPlugin, SeverityError, RetryNever},
		{"RuntimeError", RuntimeError("x"), CategoryRuntime, SeverityFatal, RetryNever},
		{"InternalError", InternalError("x"), CategoryInternal, SeverityFatal, RetryNever},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			assert.Equal(t, tt.category, err.Category())
			assert.Equal(t, tt.severity, err.Severity())
			assert.Equal(t, tt.retry, err.RetryStrategy())
			assert.Equal(t, tt.severity == SeverityFatal, err.IsFatal())
		})
	}
}

func TestLookupMissCategories(t *testing.T) {
	notFound := NotFound("missing").WithContext("key", "alpha").Build()
	notYet := NotYetExist("pending").WithContext("key", "alpha").Build()

	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsNotYetExist(notFound))
	assert.False(t, notFound.CanRetry())

	assert.True(t, IsNotYetExist(notYet))
	assert.False(t, IsNotFound(notYet))
	assert.True(t, notYet.CanRetry())
}

func TestHasCategoryWalksChain(t *testing.T) {
	inner := NotFound("dispatch id not found").Build()
	outer := WrapError(inner, CategoryPlugin, "stat failed").Build()
	wrapped := fmt.Errorf("pipeline: %w", outer)

	assert.True(t, HasCategory(wrapped, CategoryNotFound))
	assert.True(t, HasCategory(wrapped, CategoryPlugin))
	assert.False(t, HasCategory(wrapped, CategoryNetwork))
	assert.Equal(t, CategoryPlugin, GetCategory(wrapped))
	assert.True(t, IsClassified(wrapped))

	ce, ok := AsClassified(wrapped)
	require.True(t, ok)
	assert.Same(t, outer, ce)

	assert.False(t, HasCategory(errors.New("plain"), CategoryNotFound))
	assert.False(t, HasCategory(nil, CategoryNotFound))
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := NotFound("missing").Build()
	derived := base.WithContext("key", "alpha")

	_, ok := base.Context().Get("key")
	assert.False(t, ok)
	v, _ := derived.Context().GetString("key")
	assert.Equal(t, "alpha", v)
}

func TestErrorContextMerge(t *testing.T) {
	var empty ErrorContext
	ctx := empty.Set("dispatch", "weekly").Set("shared", "original")
	other := ErrorContext{}.Set("id", int64(7)).Set("shared", "overridden")

	merged := ctx.Merge(other)
	assert.Equal(t, ErrorContext{"dispatch": "weekly", "id": int64(7), "shared": "overridden"}, merged)
	assert.Equal(t, "original", ctx["shared"], "merge leaves inputs untouched")

	assert.Equal(t, other, empty.Merge(other))
	assert.Equal(t, ctx, ctx.Merge(nil))
}
