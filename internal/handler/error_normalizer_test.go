package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/logger"
	"postraft-facade/internal/resilience"
	"postraft-facade/internal/session"
)

func TestNormalizeError_ValidationError(t *testing.T) {
	err := domain.NewValidationError(map[string]string{"email": "email must be a valid email address"})

	status, normalized := NormalizeError(err, "test-request-id")

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", normalized.Code)
	assert.False(t, normalized.IsRetryable)
	assert.Equal(t, "email must be a valid email address", normalized.Fields["email"])
	assert.Equal(t, "test-request-id", normalized.RequestID)
}

func TestNormalizeError_InvalidCredentials(t *testing.T) {
	err := &domain.APIError{Kind: domain.KindAuth, StatusCode: 401, Message: "Invalid email or password"}

	status, normalized := NormalizeError(err, "test-request-id")

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", normalized.Code)
	assert.Equal(t, "Invalid email or password", normalized.Message)
	assert.False(t, normalized.IsRetryable)
}

func TestNormalizeError_PlanLimit(t *testing.T) {
	err := &domain.APIError{Kind: domain.KindConflict, StatusCode: 403, Message: "Monthly poster limit reached"}

	status, normalized := NormalizeError(err, "test-request-id")

	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "ACCESS_DENIED", normalized.Code)
	assert.Equal(t, "Monthly poster limit reached", normalized.Message)
	assert.False(t, normalized.IsRetryable)
	assert.Zero(t, normalized.RetryAfter)
}

func TestNormalizeError_RateLimitedWithHint(t *testing.T) {
	err := &domain.APIError{Kind: domain.KindConflict, StatusCode: 429, RetryAfter: 30 * time.Second}

	status, normalized := NormalizeError(err, "test-request-id")

	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", normalized.Code)
	assert.Equal(t, "Rate limit exceeded, please slow down", normalized.Message)
	assert.True(t, normalized.IsRetryable)
	assert.Equal(t, 30, normalized.RetryAfter)
}

func TestNormalizeError_BadRequestCarriesFields(t *testing.T) {
	err := &domain.APIError{
		Kind:       domain.KindBadRequest,
		StatusCode: 400,
		Message:    "Validation failed",
		Fields:     map[string]string{"price": "must be positive"},
	}

	status, normalized := NormalizeError(err, "test-request-id")

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", normalized.Code)
	assert.Equal(t, "must be positive", normalized.Fields["price"])
}

func TestNormalizeError_NotFound(t *testing.T) {
	err := fmt.Errorf("load product: %w", &domain.APIError{Kind: domain.KindNotFound, StatusCode: 404})

	status, normalized := NormalizeError(err, "test-request-id")

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", normalized.Code)
	assert.Equal(t, "The requested resource was not found", normalized.Message)
}

func TestNormalizeError_NetworkFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    *domain.APIError
		status int
		code   string
	}{
		{
			name:   "unreachable",
			err:    &domain.APIError{Kind: domain.KindNetwork, Message: "Unable to connect to the API"},
			status: http.StatusBadGateway,
			code:   CodeNetworkError,
		},
		{
			name:   "timeout",
			err:    &domain.APIError{Kind: domain.KindNetwork, Err: context.DeadlineExceeded},
			status: http.StatusGatewayTimeout,
			code:   CodeGatewayTimeout,
		},
		{
			name:   "circuit open",
			err:    &domain.APIError{Kind: domain.KindNetwork, RetryAfter: 5 * time.Second, Err: resilience.ErrCircuitOpen},
			status: http.StatusServiceUnavailable,
			code:   CodeServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, normalized := NormalizeError(tt.err, "test-request-id")

			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, normalized.Code)
			assert.True(t, normalized.IsRetryable)
			assert.Positive(t, normalized.RetryAfter)
		})
	}
}

func TestNormalizeError_ServerErrors(t *testing.T) {
	status, normalized := NormalizeError(&domain.APIError{Kind: domain.KindServer, StatusCode: 500, Message: "boom"}, "id")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "BACKEND_UNAVAILABLE", normalized.Code)
	assert.False(t, normalized.IsRetryable)

	status, normalized = NormalizeError(&domain.APIError{Kind: domain.KindServer, StatusCode: 503}, "id")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.True(t, normalized.IsRetryable)
	assert.Equal(t, 10, normalized.RetryAfter)
}

func TestNormalizeError_SubmissionInProgress(t *testing.T) {
	status, normalized := NormalizeError(session.ErrSubmissionInProgress, "test-request-id")

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SUBMISSION_IN_PROGRESS", normalized.Code)
}

func TestNormalizeError_UnexpectedError(t *testing.T) {
	status, normalized := NormalizeError(fmt.Errorf("database exploded"), "test-request-id")

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", normalized.Code)
	assert.NotContains(t, normalized.Message, "database")
}

func TestNormalizedError_ToJSON(t *testing.T) {
	normalized := &NormalizedError{
		Code:        "BACKEND_UNAVAILABLE",
		Message:     "Backend service is temporarily unavailable",
		IsRetryable: true,
		RetryAfter:  5,
		RequestID:   "test-id",
	}

	data, err := normalized.ToJSON()
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "BACKEND_UNAVAILABLE", parsed["code"])
	assert.Equal(t, true, parsed["is_retryable"])
	assert.Equal(t, float64(5), parsed["retry_after"])
	assert.NotContains(t, parsed, "fields")
}

func TestWriteError_SetsRetryAfterAndRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
	req = req.WithContext(logger.WithRequestID(req.Context(), "req-123"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, &domain.APIError{Kind: domain.KindConflict, StatusCode: 429, RetryAfter: 12 * time.Second})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "12", rec.Header().Get("Retry-After"))
	var body NormalizedError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-123", body.RequestID)
}
