// Package notify delivers the user-visible outcome of mutations.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one toast shown to the user.
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Notifier receives mutation outcomes.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Success builds a success notification.
func Success(message string) Notification {
	return newNotification(LevelSuccess, message, "")
}

// Failure builds an error notification. detail is usually the API's error text.
func Failure(message, detail string) Notification {
	return newNotification(LevelError, message, detail)
}

func newNotification(level Level, message, detail string) Notification {
	return Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		Detail:  detail,
		At:      time.Now(),
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, nt := range m {
		nt.Notify(ctx, n)
	}
}

// Log writes notifications to slog.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(ctx context.Context, n Notification) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	if n.Level == LevelError {
		log.WarnContext(ctx, "mutation failed", "message", n.Message, "detail", n.Detail)
		return
	}
	log.InfoContext(ctx, "mutation succeeded", "message", n.Message)
}

// Recorder keeps the most recent notifications for a UI to poll.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewRecorder keeps at most limit notifications, dropping the oldest.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 64
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, n)
}

// Drain returns pending notifications oldest first and forgets them.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Peek returns pending notifications without removing them.
func (r *Recorder) Peek() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Printer is the slice of the CLI printer Console needs.
type Printer interface {
	Success(format string, args ...any)
	Error(format string, args ...any)
}

// Console prints notifications through the CLI printer.
type Console struct {
	Printer Printer
}

func (c Console) Notify(_ context.Context, n Notification) {
	if n.Level == LevelError {
		if n.Detail != "" {
			c.Printer.Error("%s: %s", n.Message, n.Detail)
			return
		}
		c.Printer.Error("%s", n.Message)
		return
	}
	c.Printer.Success("%s", n.Message)
}
