// Package transport performs HTTP requests against an ArangoDB endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/internal/metrics"
	"github.com/Checker-Finance/arango-auth/pkg/rate"
)

// Transport is the capability API clients need to reach the server.
type Transport interface {
	Post(ctx context.Context, path string, body []byte) (*Response, error)
}

// Response is a status plus a readable body. Callers must Close it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// IsSuccessStatusCode reports whether the status is in the 2xx range.
func (r *Response) IsSuccessStatusCode() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Close drains any unread body and releases it.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return r.Body.Close()
}

// HTTPTransport is a Transport over net/http. It does not retry.
type HTTPTransport struct {
	logger  *zap.Logger
	baseURL *url.URL
	http    *http.Client
	rateMgr *rate.Manager
	headers http.Header
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(t *HTTPTransport) { t.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *HTTPTransport) { t.logger = l }
}

// WithRateLimiter throttles requests per endpoint host.
func WithRateLimiter(m *rate.Manager) Option {
	return func(t *HTTPTransport) { t.rateMgr = m }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(t *HTTPTransport) { t.headers.Set(key, value) }
}

// WithJWT authenticates every request with a bearer token.
func WithJWT(token string) Option {
	return WithHeader("Authorization", "bearer "+token)
}

// WithBasicAuth authenticates every request with HTTP basic auth.
func WithBasicAuth(username, password string) Option {
	cred := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return WithHeader("Authorization", "Basic "+cred)
}

// New creates an HTTPTransport rooted at endpoint, e.g. "http://localhost:8529"
// or "https://db:8529/_db/mydb". User info in the endpoint becomes basic auth.
func New(endpoint string, opts ...Option) (*HTTPTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	userinfo := u.User
	u.User = nil
	u.Path = strings.TrimRight(u.Path, "/")

	t := &HTTPTransport{
		logger:  zap.NewNop(),
		baseURL: u,
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: http.Header{},
	}
	// credentials embedded in the endpoint are a default; options override them
	if userinfo != nil {
		password, _ := userinfo.Password()
		WithBasicAuth(userinfo.Username(), password)(t)
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t, nil
}

// Post sends body to path with method POST.
func (t *HTTPTransport) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return t.do(ctx, http.MethodPost, path, body)
}

// Get issues a GET request for path.
func (t *HTTPTransport) Get(ctx context.Context, path string) (*Response, error) {
	return t.do(ctx, http.MethodGet, path, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte) (*Response, error) {
	if t.rateMgr != nil {
		if err := t.rateMgr.Wait(ctx, t.baseURL.Host); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	target := t.baseURL.String() + "/" + strings.TrimLeft(path, "/")
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range t.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	start := time.Now()
	resp, err := t.http.Do(req)
	metrics.ObserveDuration(metrics.ArangoRequestDuration, start, path, method)
	if err != nil {
		metrics.IncArangoRequest(path, method, 0)
		t.logger.Warn("arango.http_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Error(err))
		return nil, err
	}
	metrics.IncArangoRequest(path, method, resp.StatusCode)

	t.logger.Debug("arango.http_response",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
