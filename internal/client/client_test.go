package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/resilience"
)

func newTestClient(baseURL string) *Client {
	return New(Options{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		Transport:      http.DefaultTransport,
	})
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestClient_BuildURL(t *testing.T) {
	c := newTestClient("http://localhost:5000/api/")

	assert.Equal(t, "http://localhost:5000/api/products", c.BuildURL("/products", nil))
	assert.Equal(t, "http://localhost:5000/api/products", c.BuildURL("products", nil))
	assert.Equal(t, "http://localhost:5000/api/products?category=Beverages&page=2",
		c.BuildURL("/products", url.Values{"page": {"2"}, "category": {"Beverages"}}))
}

func TestClient_Get_DecodesEnvelopeData(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/products", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"products":[{"id":42,"name":"Latte","price":4.5}],"total":1,"page":2,"per_page":20,"pages":1,"has_next":false,"has_prev":true}}`)
	}))
	defer backend.Close()

	c := newTestClient(backend.URL + "/api")
	c.SetTokenSource(TokenFunc(func() string { return "tok-1" }))

	var page domain.ProductPage
	err := c.Get(context.Background(), "/products", url.Values{"page": {"2"}}, &page)

	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, int64(42), page.Products[0].ID)
	assert.Equal(t, 2, page.Page)
	assert.True(t, page.HasPrev)
}

func TestClient_Post_SendsJSONBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@example.com", body["email"])

		writeJSON(w, http.StatusOK, `{"success":true,"message":"Login successful","data":{"token":"jwt","user":{"id":1,"email":"ana@example.com"}}}`)
	}))
	defer backend.Close()

	c := newTestClient(backend.URL)

	var out struct {
		Token string       `json:"token"`
		User  *domain.User `json:"user"`
	}
	err := c.Post(context.Background(), "/auth/login", map[string]string{"email": "ana@example.com", "password": "x"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "jwt", out.Token)
	assert.Equal(t, "ana@example.com", out.User.Email)
}

func TestClient_Delete_NoContent(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer backend.Close()

	err := newTestClient(backend.URL).Delete(context.Background(), "/products/42")

	assert.NoError(t, err)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		header      map[string]string
		wantKind    domain.Kind
		wantMessage string
		wantRetry   time.Duration
	}{
		{
			name:        "invalid credentials",
			status:      http.StatusUnauthorized,
			body:        `{"success":false,"error":"Invalid email or password"}`,
			wantKind:    domain.KindAuth,
			wantMessage: "Invalid email or password",
		},
		{
			name:        "plan limit",
			status:      http.StatusForbidden,
			body:        `{"error":"Product limit reached for your plan"}`,
			wantKind:    domain.KindConflict,
			wantMessage: "Product limit reached for your plan",
		},
		{
			name:        "not found without body",
			status:      http.StatusNotFound,
			wantKind:    domain.KindNotFound,
			wantMessage: "The requested resource was not found",
		},
		{
			name:        "rate limited with header",
			status:      http.StatusTooManyRequests,
			header:      map[string]string{"Retry-After": "7"},
			wantKind:    domain.KindConflict,
			wantMessage: "Rate limit exceeded, please slow down",
			wantRetry:   7 * time.Second,
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        `{"success":false,"error":"Failed to fetch products"}`,
			wantKind:    domain.KindServer,
			wantMessage: "Failed to fetch products",
		},
		{
			name:        "service unavailable default hint",
			status:      http.StatusServiceUnavailable,
			wantKind:    domain.KindServer,
			wantMessage: "Service is temporarily unavailable",
			wantRetry:   10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				writeJSON(w, tt.status, tt.body)
			}))
			defer backend.Close()

			err := newTestClient(backend.URL).Get(context.Background(), "/products", nil, nil)

			var apiErr *domain.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantRetry, apiErr.RetryAfter)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestClient_ValidationDetails(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/products") {
			writeJSON(w, http.StatusBadRequest, `{"success":false,"error":"Validation failed","errors":["Product name is required","Price must be a valid number"]}`)
			return
		}
		writeJSON(w, http.StatusBadRequest, `{"success":false,"error":"Validation failed","errors":{"email":["Email already registered"]}}`)
	}))
	defer backend.Close()
	c := newTestClient(backend.URL)

	err := c.Post(context.Background(), "/products", map[string]any{}, nil)
	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, domain.KindBadRequest, apiErr.Kind)
	assert.Equal(t, []string{"Product name is required", "Price must be a valid number"}, apiErr.Details)

	err = c.Post(context.Background(), "/auth/register", map[string]any{}, nil)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, map[string]string{"email": "Email already registered"}, apiErr.Fields)
}

func TestClient_OnUnauthorized_OnlyWithToken(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"error":"Token has expired"}`)
	}))
	defer backend.Close()

	c := newTestClient(backend.URL)
	var got []string
	c.OnUnauthorized(func(token string) { got = append(got, token) })

	_ = c.Get(context.Background(), "/auth/me", nil, nil)
	assert.Empty(t, got, "anonymous 401 must not trigger the hook")

	c.SetTokenSource(TokenFunc(func() string { return "stale" }))
	err := c.Get(context.Background(), "/auth/me", nil, nil)

	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, []string{"stale"}, got)
}

func TestClient_WithoutAuth_OmitsToken(t *testing.T) {
	var auth []string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusUnauthorized, `{"error":"Invalid email or password"}`)
	}))
	defer backend.Close()

	c := newTestClient(backend.URL)
	c.SetTokenSource(TokenFunc(func() string { return "current" }))
	var hooked bool
	c.OnUnauthorized(func(string) { hooked = true })

	err := c.Post(WithoutAuth(context.Background()), "/auth/login", map[string]string{"email": "a@b.c"}, nil)

	assert.ErrorIs(t, err, domain.ErrAuth)
	assert.Equal(t, []string{""}, auth)
	assert.False(t, hooked)
}

func TestClient_NetworkError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close()

	err := newTestClient(backend.URL).Get(context.Background(), "/products", nil, nil)

	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.True(t, domain.IsRetryable(err))
	assert.True(t, IsBackendFailure(err))
}

func TestClient_Timeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer backend.Close()

	c := New(Options{BaseURL: backend.URL, RequestTimeout: 20 * time.Millisecond, Transport: http.DefaultTransport})
	err := c.Get(context.Background(), "/slow", nil, nil)

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, domain.KindNetwork, apiErr.Kind)
	assert.Equal(t, "The API did not respond in time", apiErr.Message)
}

func TestClient_MalformedData(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"products":"nope"}}`)
	}))
	defer backend.Close()

	var page domain.ProductPage
	err := newTestClient(backend.URL).Get(context.Background(), "/products", nil, &page)

	assert.ErrorIs(t, err, domain.ErrUnknown)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadGateway, `{"error":"upstream down"}`)
	}))
	defer backend.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		IsFailure:        IsBackendFailure,
	})
	c := New(Options{BaseURL: backend.URL, Transport: http.DefaultTransport, Breaker: cb})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, c.Get(context.Background(), "/posters/stats", nil, nil), domain.ErrServer)
	}
	err := c.Get(context.Background(), "/posters/stats", nil, nil)

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":"Product not found"}`)
	}))
	defer backend.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
		IsFailure:        IsBackendFailure,
	})
	c := New(Options{BaseURL: backend.URL, Transport: http.DefaultTransport, Breaker: cb})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, c.Get(context.Background(), "/products/9", nil, nil), domain.ErrNotFound)
	}
	assert.Equal(t, resilience.StateClosed, cb.State())
}

func TestClient_RateLimiterHonoursContext(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer backend.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := New(Options{BaseURL: backend.URL, Transport: http.DefaultTransport, Limiter: limiter})

	require.NoError(t, c.Get(context.Background(), "/health", nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Get(ctx, "/health", nil, nil)

	assert.ErrorIs(t, err, domain.ErrNetwork)
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) ObserveRequest(method, resource string, status int, _ time.Duration) {
	r.calls = append(r.calls, method+" "+resource+" "+http.StatusText(status))
}

func TestClient_ObserverUsesBoundedLabels(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer backend.Close()

	obs := &recordingObserver{}
	c := New(Options{BaseURL: backend.URL, Transport: http.DefaultTransport, Observer: obs})

	require.NoError(t, c.Get(context.Background(), "/products/42", nil, nil))
	require.NoError(t, c.Post(context.Background(), "/templates/3/duplicate", nil, nil))

	assert.Equal(t, []string{"GET products OK", "POST templates OK"}, obs.calls)
}

func TestClient_Upload(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/42/image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "latte.png", header.Filename)
		assert.Equal(t, "png-bytes", string(data))
		writeJSON(w, http.StatusOK, `{"success":true,"message":"Image uploaded successfully","data":{"image_url":"https://cdn.test/latte.png"}}`)
	}))
	defer backend.Close()

	var out domain.ImageUpload
	err := newTestClient(backend.URL).Upload(context.Background(), "/products/42/image", "image", "latte.png", strings.NewReader("png-bytes"), &out)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/latte.png", out.ImageURL)
}

func TestParseRetryAfter(t *testing.T) {
	d, ok := parseRetryAfter("30")
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)

	_, ok = parseRetryAfter("soon")
	assert.False(t, ok)

	d, ok = parseRetryAfter(time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	assert.True(t, ok)
	assert.Greater(t, d, 58*time.Minute)
}
