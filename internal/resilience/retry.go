package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a failed query is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Retryable reports whether err may be retried. Nil retries nothing.
	Retryable func(error) bool
	// RetryAfter extracts a server-provided delay hint from err.
	RetryAfter func(error) time.Duration
}

// DefaultRetryPolicy retries three times, doubling from one second up to thirty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// hintedBackOff stretches the next exponential delay to honour Retry-After.
type hintedBackOff struct {
	inner backoff.BackOff
	max   time.Duration
	hint  time.Duration
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	next := h.inner.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if h.hint > next {
		next = min(h.hint, h.max)
	}
	h.hint = 0
	return next
}

func (h *hintedBackOff) Reset() {
	h.inner.Reset()
	h.hint = 0
}

// Retry runs op until it succeeds, returns a non-retryable error, the retry
// budget is spent or ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	if p.MaxRetries <= 0 || p.Retryable == nil {
		return op(ctx)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = 2
	bo := &hintedBackOff{inner: exp, max: p.MaxInterval}

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		if p.RetryAfter != nil {
			bo.hint = p.RetryAfter(err)
		}
		return v, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.DebugContext(ctx, "retrying after error", "error", err, "next", next)
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return result, err
}
