package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindConflict},
		{http.StatusConflict, KindConflict},
		{http.StatusTooManyRequests, KindConflict},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindBadRequest},
		{http.StatusUnprocessableEntity, KindBadRequest},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
		{http.StatusTeapot, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestAPIError_IsMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("load products: %w", &APIError{Kind: KindNotFound, StatusCode: 404, Message: "Product not found"})

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAuth))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "not_found (404): Product not found", errors.Unwrap(err).Error())
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want bool
	}{
		{"network", &APIError{Kind: KindNetwork}, true},
		{"bad gateway", &APIError{Kind: KindServer, StatusCode: 502}, true},
		{"service unavailable", &APIError{Kind: KindServer, StatusCode: 503}, true},
		{"internal error", &APIError{Kind: KindServer, StatusCode: 500}, false},
		{"rate limited", &APIError{Kind: KindConflict, StatusCode: 429}, true},
		{"plan limit", &APIError{Kind: KindConflict, StatusCode: 403}, false},
		{"auth", &APIError{Kind: KindAuth, StatusCode: 401}, false},
		{"not found", &APIError{Kind: KindNotFound, StatusCode: 404}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
			assert.Equal(t, tt.want, IsRetryable(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestAPIError_UnwrapsTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &APIError{Kind: KindNetwork, Message: "Unable to reach api", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(map[string]string{
		"password": "password must be at least 8 characters long",
		"name":     "name is required",
	})

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "validation failed: name is required; password must be at least 8 characters long", err.Error())
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestSession_ContextRoundTrip(t *testing.T) {
	_, err := SessionFromContext(t.Context())
	assert.ErrorIs(t, err, ErrNoSession)

	s := Session{State: SessionAuthenticated, Token: "tok", User: &User{ID: 1}}
	got, err := SessionFromContext(WithSession(t.Context(), s))

	assert.NoError(t, err)
	assert.True(t, got.IsAuthenticated())
	assert.Equal(t, "authenticated", got.State.String())
}
