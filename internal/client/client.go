// Package client talks to the remote Postraft API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/logger"
	"postraft-facade/internal/resilience"
)

// RequestIDHeader carries the per-request id to the API.
const RequestIDHeader = "X-Request-ID"

const maxResponseBytes = 10 << 20

// TokenSource supplies the bearer token attached to outbound requests.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// RequestObserver records outbound request outcomes.
type RequestObserver interface {
	ObserveRequest(method, resource string, status int, elapsed time.Duration)
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	// Transport defaults to an HTTP/2-capable clone of http.DefaultTransport.
	Transport http.RoundTripper
	Limiter   *rate.Limiter
	Breaker   *resilience.CircuitBreaker
	Observer  RequestObserver
	Logger    *slog.Logger
}

// Client is a JSON envelope client for the remote API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	limiter        *rate.Limiter
	breaker        *resilience.CircuitBreaker
	observer       RequestObserver
	log            *slog.Logger

	mu             sync.RWMutex
	tokens         TokenSource
	onUnauthorized func(token string)
}

// New creates a Client. Limiter, Breaker and Observer are optional.
func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = newTransport()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = opts.RequestTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			// Timeouts are applied per request through the context.
		},
		requestTimeout: opts.RequestTimeout,
		uploadTimeout:  opts.UploadTimeout,
		limiter:        opts.Limiter,
		breaker:        opts.Breaker,
		observer:       opts.Observer,
		log:            log.With("component", "api_client"),
	}
}

func newTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 16
	// Negotiate HTTP/2 over TLS; plain http:// APIs stay on HTTP/1.1.
	if err := http2.ConfigureTransport(t); err != nil {
		slog.Warn("http2 transport unavailable, using HTTP/1.1", "error", err)
	}
	return t
}

// SetTokenSource installs the bearer token provider.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// OnUnauthorized registers fn to be called with the sent token whenever the
// API answers 401 to an authenticated request.
func (c *Client) OnUnauthorized(fn func(token string)) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

type anonymousKey struct{}

// WithoutAuth marks requests made with ctx as anonymous: no bearer token is
// sent, so a 401 from them never reaches the OnUnauthorized hook.
func WithoutAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey{}, true)
}

func isAnonymous(ctx context.Context) bool {
	v, _ := ctx.Value(anonymousKey{}).(bool)
	return v
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) unauthorized(token string) {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn(token)
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BuildURL constructs the full API URL from a path and optional query.
func (c *Client) BuildURL(path string, query url.Values) string {
	var u string
	if strings.HasPrefix(path, "/") {
		u = c.baseURL + path
	} else {
		u = c.baseURL + "/" + path
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get fetches path and decodes the envelope's data into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post sends body as JSON and decodes the envelope's data into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Put sends body as JSON and decodes the envelope's data into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Do performs a JSON request. Every failure is returned as *domain.APIError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		payload = bytes.NewReader(raw)
	}
	return c.send(ctx, request{
		method:      method,
		path:        path,
		query:       query,
		body:        payload,
		contentType: "application/json",
		timeout:     c.requestTimeout,
	}, out)
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	timeout     time.Duration
}

func (c *Client) send(ctx context.Context, r request, out any) error {
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.APIError{
				Kind:      domain.KindNetwork,
				Message:   "Request cancelled while waiting for rate limiter",
				RequestID: requestID,
				Err:       err,
			}
		}
	}

	if c.breaker != nil && !c.breaker.Allow() {
		return &domain.APIError{
			Kind:       domain.KindNetwork,
			Message:    "API is temporarily unavailable",
			RequestID:  requestID,
			RetryAfter: 5 * time.Second,
			Err:        resilience.ErrCircuitOpen,
		}
	}

	err := c.roundTrip(ctx, r, requestID, out)
	if c.breaker != nil {
		c.breaker.Record(err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request, requestID string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, r.method, c.BuildURL(r.path, r.query), r.body)
	if err != nil {
		return &domain.APIError{Kind: domain.KindUnknown, Message: "Invalid request", RequestID: requestID, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set(RequestIDHeader, requestID)
	var token string
	if !isAnonymous(ctx) {
		token = c.token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(r, 0, start)
		c.log.WarnContext(ctx, "api request failed", "method", r.method, "path", r.path, "error", err)
		return networkError(err, requestID)
	}
	defer resp.Body.Close()
	c.observe(r, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError(err, requestID)
	}

	if resp.StatusCode >= 400 {
		apiErr := classify(resp, raw, requestID)
		if apiErr.Kind == domain.KindAuth && token != "" {
			c.unauthorized(token)
		}
		c.log.DebugContext(ctx, "api request rejected",
			"method", r.method, "path", r.path, "status", resp.StatusCode, "kind", apiErr.Kind.String())
		return apiErr
	}

	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return decodeEnvelope(raw, resp.StatusCode, requestID, out)
}

func (c *Client) observe(r request, status int, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveRequest(r.method, resourceOf(r.path), status, time.Since(start))
}

// resourceOf keeps metric labels bounded: /products/42/image -> products.
func resourceOf(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}

func networkError(err error, requestID string) *domain.APIError {
	msg := "Unable to connect to the API"
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "The API did not respond in time"
	}
	return &domain.APIError{
		Kind:      domain.KindNetwork,
		Message:   msg,
		RequestID: requestID,
		Err:       err,
	}
}
