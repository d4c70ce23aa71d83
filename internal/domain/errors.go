package domain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Kind classifies a failed API call.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindNotFound
	KindConflict
	KindNetwork
	KindServer
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// API error classes, matched with errors.Is against an *APIError.
var (
	ErrAuth       = errors.New("authentication failed")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("request conflicts with plan limits or rate limits")
	ErrNetwork    = errors.New("api unreachable")
	ErrServer     = errors.New("api server error")
	ErrBadRequest = errors.New("request rejected by api")
	ErrUnknown    = errors.New("unexpected api error")
)

// Local errors.
var (
	ErrValidation = errors.New("validation failed")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindNetwork:
		return ErrNetwork
	case KindServer:
		return ErrServer
	case KindBadRequest:
		return ErrBadRequest
	default:
		return ErrUnknown
	}
}

// KindForStatus maps an HTTP status code from the API to a Kind.
// 403 is what the API returns for exhausted plan limits, so it is a conflict
// and does not end the session.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusForbidden, status == http.StatusConflict, status == http.StatusTooManyRequests:
		return KindConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindBadRequest
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// APIError is a failed call to the remote API.
type APIError struct {
	Kind       Kind
	StatusCode int
	// Message is the API's error text, or a generic one for transport failures.
	Message string
	// Fields carries per-field errors when the API's "errors" is an object.
	Fields map[string]string
	// Details carries the API's "errors" when it is a list of messages.
	Details []string

	RequestID  string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's Kind.
func (e *APIError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// Retryable reports whether a query may be retried with backoff.
// Plain 500s are surfaced rather than retried.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case KindNetwork:
		return true
	case KindServer:
		return e.StatusCode == http.StatusBadGateway ||
			e.StatusCode == http.StatusServiceUnavailable ||
			e.StatusCode == http.StatusGatewayTimeout
	case KindConflict:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a retryable *APIError.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// RetryAfterOf returns the server's retry hint carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// ValidationError is a local, field-level failure detected before any request.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
