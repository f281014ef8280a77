package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

func TestHTTPClient_Create(t *testing.T) {
	var got url.Values
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		header = r.Header.Clone()
		_, _ = w.Write([]byte(`<p class="info"><a href="page.html?id=99">x</a></p>`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "dispatchbuilder-test",
		WithHeaders(map[string]string{"X-Password": "secret"}),
		WithTimeout(5*time.Second))

	body, err := client.Create(context.Background(), Request{
		Name: "weekly", Title: "Weekly", Category: 1, Subcategory: 100, Text: "Placeholder",
	})
	require.NoError(t, err)

	id, err := ExtractID(body)
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)

	assert.Equal(t, "create", got.Get("mode"))
	assert.Equal(t, "Weekly", got.Get("title"))
	assert.Equal(t, "1", got.Get("category"))
	assert.Equal(t, "100", got.Get("subcategory"))
	assert.Equal(t, "Placeholder", got.Get("text"))
	assert.False(t, got.Has("id"))
	assert.Equal(t, "dispatchbuilder-test", header.Get("User-Agent"))
	assert.Equal(t, "secret", header.Get("X-Password"))
}

func TestHTTPClient_Edit(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "ua")
	_, err := client.Edit(context.Background(), Request{Name: "weekly", ID: 42, Text: "body"})
	require.NoError(t, err)
	assert.Equal(t, "edit", got.Get("mode"))
	assert.Equal(t, "42", got.Get("id"))

	_, err = client.Edit(context.Background(), Request{Name: "weekly"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestHTTPClient_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "ua").Create(context.Background(), Request{Name: "weekly"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNetwork))

	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	status, _ := ce.Context().Get("status")
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, ce.CanRetry(), "client errors are permanent")
}

func TestHTTPClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "ua").Edit(context.Background(), Request{Name: "weekly", ID: 3})
	require.Error(t, err)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	assert.True(t, ce.CanRetry())
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	_, err := NewHTTPClient(endpoint, "ua").Create(context.Background(), Request{Name: "weekly"})
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNetwork))
	assert.Equal(t, errors.RetryBackoff, errors.GetRetryStrategy(err))
}
