package cache

import (
	"context"
	"errors"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/notify"
)

// MutateOptions describes the cache side effects of a write.
type MutateOptions struct {
	// Invalidates lists key prefixes marked stale after success.
	Invalidates []Key
	// SuccessMessage is shown on success when set.
	SuccessMessage string
	// ErrorMessage is shown on failure. A generic message is used when empty.
	ErrorMessage string
}

// DefaultErrorMessage is shown for failed mutations without an ErrorMessage.
const DefaultErrorMessage = "Something went wrong"

// Mutate runs a write against the API. Only after fn succeeds are the keys in
// opts.Invalidates marked stale, so observed ones refetch. On failure the
// cache is left untouched and an error notification is published.
// Local validation errors are returned without a notification; the form
// shows them next to the fields.
func Mutate[T any](ctx context.Context, c *Cache, fn func(ctx context.Context) (T, error), opts MutateOptions) (T, error) {
	result, err := fn(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			msg := opts.ErrorMessage
			if msg == "" {
				msg = DefaultErrorMessage
			}
			c.cfg.Notifier.Notify(ctx, notify.Failure(msg, errorDetail(err)))
		}
		return result, err
	}

	if len(opts.Invalidates) > 0 {
		c.Invalidate(opts.Invalidates...)
	}
	if opts.SuccessMessage != "" {
		c.cfg.Notifier.Notify(ctx, notify.Success(opts.SuccessMessage))
	}
	return result, nil
}

// errorDetail prefers the API's own error text.
func errorDetail(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
