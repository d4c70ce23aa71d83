package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/resilience"
)

// envelope is the shape of every API response body.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Errors  json.RawMessage `json:"errors"`
}

// fallback describes the generic message and retry hint per status, used
// when the API sends no error text.
var fallback = map[int]struct {
	message    string
	retryAfter time.Duration
}{
	http.StatusBadRequest:          {"The request was malformed or invalid", 0},
	http.StatusUnauthorized:        {"Authentication token is invalid or expired", 0},
	http.StatusForbidden:           {"Your plan does not allow this action", 0},
	http.StatusNotFound:            {"The requested resource was not found", 0},
	http.StatusConflict:            {"The request conflicts with existing data", 0},
	http.StatusUnprocessableEntity: {"The request could not be processed", 0},
	http.StatusTooManyRequests:     {"Rate limit exceeded, please slow down", 60 * time.Second},
	http.StatusInternalServerError: {"An internal error occurred", 0},
	http.StatusBadGateway:          {"API is temporarily unavailable", 5 * time.Second},
	http.StatusServiceUnavailable:  {"Service is temporarily unavailable", 10 * time.Second},
	http.StatusGatewayTimeout:      {"API timed out", 10 * time.Second},
}

func classify(resp *http.Response, raw []byte, requestID string) *domain.APIError {
	apiErr := &domain.APIError{
		Kind:       domain.KindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
	}

	var env envelope
	if json.Unmarshal(raw, &env) == nil {
		apiErr.Message = env.Error
		if apiErr.Message == "" {
			apiErr.Message = env.Message
		}
		apiErr.Fields, apiErr.Details = decodeErrorDetails(env.Errors)
	}

	fb, ok := fallback[resp.StatusCode]
	if apiErr.Message == "" {
		if ok {
			apiErr.Message = fb.message
		} else {
			apiErr.Message = "An unexpected error occurred"
		}
	}
	apiErr.RetryAfter = fb.retryAfter
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		apiErr.RetryAfter = d
	}
	return apiErr
}

// decodeErrorDetails accepts either {"field": "msg" | ["msg", ...]} or ["msg", ...].
func decodeErrorDetails(raw json.RawMessage) (map[string]string, []string) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return nil, list
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return nil, nil
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if json.Unmarshal(v, &s) == nil {
			fields[k] = s
			continue
		}
		var ss []string
		if json.Unmarshal(v, &ss) == nil && len(ss) > 0 {
			fields[k] = ss[0]
		}
	}
	return fields, nil
}

func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func decodeEnvelope(raw []byte, status int, requestID string, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &domain.APIError{
			Kind:       domain.KindUnknown,
			StatusCode: status,
			Message:    "Malformed response from the API",
			RequestID:  requestID,
			Err:        err,
		}
	}
	if env.Success != nil && !*env.Success {
		fields, details := decodeErrorDetails(env.Errors)
		msg := env.Error
		if msg == "" {
			msg = "The API reported a failure"
		}
		return &domain.APIError{
			Kind:       domain.KindUnknown,
			StatusCode: status,
			Message:    msg,
			Fields:     fields,
			Details:    details,
			RequestID:  requestID,
		}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &domain.APIError{
			Kind:       domain.KindUnknown,
			StatusCode: status,
			Message:    "Unexpected response shape from the API",
			RequestID:  requestID,
			Err:        err,
		}
	}
	return nil
}

// IsBackendFailure reports whether err means the API itself is unhealthy.
// Caller cancellation and an already-open circuit do not count.
func IsBackendFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	switch domain.KindOf(err) {
	case domain.KindNetwork, domain.KindServer:
		return true
	}
	return false
}
