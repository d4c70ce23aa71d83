package cache

import "time"

// Metrics receives cache lifecycle events. resource is Key.Resource().
type Metrics interface {
	Hit(resource string)
	Miss(resource string)
	Fetched(resource string, elapsed time.Duration, err error)
	Invalidated(resource string)
	Evicted(reason string)
}

// Eviction reasons.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
	EvictReset    = "reset"
)

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)                           {}
func (NoopMetrics) Miss(string)                          {}
func (NoopMetrics) Fetched(string, time.Duration, error) {}
func (NoopMetrics) Invalidated(string)                   {}
func (NoopMetrics) Evicted(string)                       {}
