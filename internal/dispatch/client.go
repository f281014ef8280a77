package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// Request is one dispatch submission.
type Request struct {
	Name        string
	ID          int64 // zero when creating
	Title       string
	Category    int64
	Subcategory int64
	Text        string
}

// Client submits dispatches to the remote site and returns the response body.
type Client interface {
	Create(ctx context.Context, req Request) ([]byte, error)
	Edit(ctx context.Context, req Request) ([]byte, error)
}

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// HTTPClient posts dispatches as form submissions to a single endpoint.
type HTTPClient struct {
	endpoint  string
	userAgent string
	headers   map[string]string
	http      *http.Client
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) HTTPClientOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithHeaders adds static request headers, for example credentials.
func WithHeaders(headers map[string]string) HTTPClientOption {
	return func(h *HTTPClient) {
		for k, v := range headers {
			h.headers[k] = v
		}
	}
}

// WithTimeout sets the request timeout of the default *http.Client.
func WithTimeout(d time.Duration) HTTPClientOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.http.Timeout = d
		}
	}
}

// NewHTTPClient creates a client posting to endpoint with the given user agent.
func NewHTTPClient(endpoint, userAgent string, opts ...HTTPClientOption) *HTTPClient {
	h := &HTTPClient{
		endpoint:  endpoint,
		userAgent: userAgent,
		headers:   make(map[string]string),
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Create implements Client.
func (h *HTTPClient) Create(ctx context.Context, req Request) ([]byte, error) {
	return h.post(ctx, "create", req)
}

// Edit implements Client.
func (h *HTTPClient) Edit(ctx context.Context, req Request) ([]byte, error) {
	if req.ID == 0 {
		return nil, errors.ValidationError("edit requires a dispatch id").
			WithContext("dispatch", req.Name).
			Build()
	}
	return h.post(ctx, "edit", req)
}

func (h *HTTPClient) post(ctx context.Context, mode string, req Request) ([]byte, error) {
	form := url.Values{}
	form.Set("mode", mode)
	form.Set("title", req.Title)
	form.Set("category", strconv.FormatInt(req.Category, 10))
	form.Set("subcategory", strconv.FormatInt(req.Subcategory, 10))
	form.Set("text", req.Text)
	if req.ID != 0 {
		form.Set("id", strconv.FormatInt(req.ID, 10))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryValidation, "invalid publish endpoint").
			WithContext("url", h.endpoint).
			Build()
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", h.userAgent)
	for k, v := range h.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := h.http.Do(httpReq)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "publish request failed").
			Retryable().
			WithContext("dispatch", req.Name).
			WithContext("mode", mode).
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "failed to read publish response").
			Retryable().
			WithContext("dispatch", req.Name).
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b := errors.NetworkError("publish request rejected").
			WithContext("dispatch", req.Name).
			WithContext("mode", mode).
			WithContext("status", resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			b = b.WithRetry(errors.RetryNever)
		}
		return nil, b.Build()
	}
	return body, nil
}

var _ Client = (*HTTPClient)(nil)
