// Package handler provides the HTTP handlers of the local facade.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/logger"
	"postraft-facade/internal/resilience"
	"postraft-facade/internal/session"
)

// NormalizedError represents a standardized error response for the UI.
// It provides consistent error information including retry guidance.
type NormalizedError struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	IsRetryable bool              `json:"is_retryable"`
	RetryAfter  int               `json:"retry_after,omitempty"` // seconds
	RequestID   string            `json:"request_id"`
	Fields      map[string]string `json:"fields,omitempty"`
	Details     []string          `json:"details,omitempty"`
}

// Error codes
const (
	CodeBackendUnavailable   = "BACKEND_UNAVAILABLE"
	CodeServiceUnavailable   = "SERVICE_UNAVAILABLE"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeAccessDenied         = "ACCESS_DENIED"
	CodeConflict             = "CONFLICT"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeGatewayTimeout       = "GATEWAY_TIMEOUT"
	CodeBadRequest           = "BAD_REQUEST"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeNotFound             = "NOT_FOUND"
	CodeNetworkError         = "NETWORK_ERROR"
	CodeSubmissionInProgress = "SUBMISSION_IN_PROGRESS"
	CodeUnknownError         = "UNKNOWN_ERROR"
)

// errorMapping defines the defaults for each status the facade answers with
var errorMapping = map[int]struct {
	code        string
	message     string
	isRetryable bool
	retryAfter  int
}{
	http.StatusBadGateway: {
		code:        CodeBackendUnavailable,
		message:     "Backend service is temporarily unavailable",
		isRetryable: true,
		retryAfter:  5,
	},
	http.StatusServiceUnavailable: {
		code:        CodeServiceUnavailable,
		message:     "Service is temporarily unavailable",
		isRetryable: true,
		retryAfter:  10,
	},
	http.StatusTooManyRequests: {
		code:        CodeRateLimitExceeded,
		message:     "Rate limit exceeded, please slow down",
		isRetryable: true,
		retryAfter:  60,
	},
	http.StatusUnauthorized: {
		code:    CodeInvalidToken,
		message: "Authentication token is invalid or expired",
	},
	http.StatusForbidden: {
		code:    CodeAccessDenied,
		message: "Access to this resource is denied",
	},
	http.StatusConflict: {
		code:    CodeConflict,
		message: "The request conflicts with the current state",
	},
	http.StatusInternalServerError: {
		code:    CodeInternalError,
		message: "An internal error occurred",
	},
	http.StatusGatewayTimeout: {
		code:        CodeGatewayTimeout,
		message:     "Backend service timed out",
		isRetryable: true,
		retryAfter:  10,
	},
	http.StatusBadRequest: {
		code:    CodeBadRequest,
		message: "The request was malformed or invalid",
	},
	http.StatusUnprocessableEntity: {
		code:    CodeValidationFailed,
		message: "Some fields are invalid",
	},
	http.StatusNotFound: {
		code:    CodeNotFound,
		message: "The requested resource was not found",
	},
}

// badRequestError is a request the facade could not decode.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// NormalizeError converts err into the status the facade answers with and
// the body describing it.
func NormalizeError(err error, requestID string) (int, *NormalizedError) {
	var (
		validationErr *domain.ValidationError
		apiErr        *domain.APIError
		reqErr        *badRequestError
	)

	switch {
	case errors.As(err, &validationErr):
		n := fromStatus(http.StatusUnprocessableEntity, requestID)
		n.Fields = validationErr.Fields
		return http.StatusUnprocessableEntity, n
	case errors.As(err, &reqErr):
		n := fromStatus(http.StatusBadRequest, requestID)
		n.Message = reqErr.msg
		return http.StatusBadRequest, n
	case errors.Is(err, session.ErrSubmissionInProgress):
		return http.StatusConflict, &NormalizedError{
			Code:      CodeSubmissionInProgress,
			Message:   "A sign-in is already in progress",
			RequestID: requestID,
		}
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized, fromStatus(http.StatusUnauthorized, requestID)
	case errors.As(err, &apiErr):
		return normalizeAPIError(apiErr, requestID)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, fromStatus(http.StatusGatewayTimeout, requestID)
	}

	n := fromStatus(http.StatusInternalServerError, requestID)
	return http.StatusInternalServerError, n
}

func normalizeAPIError(apiErr *domain.APIError, requestID string) (int, *NormalizedError) {
	status := facadeStatus(apiErr)
	n := fromStatus(status, requestID)

	// unclassified API errors keep the generic text
	if status != http.StatusInternalServerError && apiErr.Message != "" {
		n.Message = apiErr.Message
	}
	if apiErr.Kind == domain.KindNetwork && status == http.StatusBadGateway {
		n.Code = CodeNetworkError
	}
	n.IsRetryable = apiErr.Retryable()
	if !n.IsRetryable {
		n.RetryAfter = 0
	} else if s := int(apiErr.RetryAfter.Seconds()); s > 0 {
		n.RetryAfter = s
	}
	n.Fields = apiErr.Fields
	n.Details = apiErr.Details
	if apiErr.RequestID != "" && requestID == "" {
		n.RequestID = apiErr.RequestID
	}
	return status, n
}

// facadeStatus picks the status the UI sees for an API failure.
func facadeStatus(apiErr *domain.APIError) int {
	switch apiErr.Kind {
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		switch apiErr.StatusCode {
		case http.StatusForbidden, http.StatusTooManyRequests:
			return apiErr.StatusCode
		}
		return http.StatusConflict
	case domain.KindBadRequest:
		if apiErr.StatusCode == http.StatusUnprocessableEntity {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case domain.KindNetwork:
		switch {
		case errors.Is(apiErr, resilience.ErrCircuitOpen):
			return http.StatusServiceUnavailable
		case errors.Is(apiErr, context.DeadlineExceeded):
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case domain.KindServer:
		if apiErr.StatusCode == http.StatusServiceUnavailable || apiErr.StatusCode == http.StatusGatewayTimeout {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func fromStatus(status int, requestID string) *NormalizedError {
	mapping, ok := errorMapping[status]
	if !ok {
		return &NormalizedError{
			Code:      CodeUnknownError,
			Message:   "An unexpected error occurred",
			RequestID: requestID,
		}
	}
	return &NormalizedError{
		Code:        mapping.code,
		Message:     mapping.message,
		IsRetryable: mapping.isRetryable,
		RetryAfter:  mapping.retryAfter,
		RequestID:   requestID,
	}
}

// ToJSON serializes the normalized error to JSON bytes.
func (e *NormalizedError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteError writes err as a normalized error response.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, n := NormalizeError(err, logger.RequestID(r.Context()))
	if n.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(n.RetryAfter))
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, n)
}
