// Package domain provides domain types for the Postraft client core.
package domain

import (
	"context"
	"errors"
)

type contextKey string

const sessionContextKey contextKey = "session"

// ErrNoSession is returned when no session snapshot is found in the context.
var ErrNoSession = errors.New("no session in context")

// SessionState is the position in the session state machine.
type SessionState int

const (
	// SessionUnknown means hydration has not finished yet.
	SessionUnknown SessionState = iota
	SessionAuthenticated
	SessionAnonymous
)

func (s SessionState) String() string {
	switch s {
	case SessionAuthenticated:
		return "authenticated"
	case SessionAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Session is an immutable snapshot of the session manager state.
type Session struct {
	State   SessionState `json:"-"`
	User    *User        `json:"user"`
	Plan    *Plan        `json:"plan"`
	Token   string       `json:"-"`
	Loading bool         `json:"loading"`
}

// IsAuthenticated checks that the snapshot carries both a token and a user.
func (s Session) IsAuthenticated() bool {
	return s.State == SessionAuthenticated && s.Token != "" && s.User != nil
}

// WithSession attaches a session snapshot to the given context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext retrieves the session snapshot from the given context.
func SessionFromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(sessionContextKey).(Session)
	if !ok {
		return Session{}, ErrNoSession
	}
	return s, nil
}
