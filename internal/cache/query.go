package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Fetcher loads the data for one key from the API.
type Fetcher[T any] func(ctx context.Context) (T, error)

func (f Fetcher[T]) erase() fetchFunc {
	return func(ctx context.Context) (any, error) {
		return f(ctx)
	}
}

type queryOptions struct {
	staleTime *time.Duration
	retries   *int
}

// QueryOption customises a single Fetch or Observe.
type QueryOption func(*queryOptions)

// WithStaleTime overrides the cache-wide staleness window for a key.
func WithStaleTime(d time.Duration) QueryOption {
	return func(o *queryOptions) { o.staleTime = &d }
}

// WithRetries overrides the number of retries for retryable failures.
func WithRetries(n int) QueryOption {
	return func(o *queryOptions) { o.retries = &n }
}

func buildOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const maxSupersededWaits = 3

// Fetch returns fresh cached data for key, or fetches it. Concurrent calls
// for the same key share one request. A result superseded by a newer fetch
// (for example after an invalidation) is never returned; Fetch waits for the
// newer one instead. Cancelling ctx stops the wait, not the shared request.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetcher Fetcher[T], opts ...QueryOption) (T, error) {
	var zero T
	o := buildOptions(opts)
	id := key.String()

	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		c.sweepLocked()
		if e := c.getLocked(id); e != nil {
			e.opts = mergeOptions(e.opts, o)
			if !c.isStaleLocked(e) {
				data := e.data
				c.mu.Unlock()
				c.hits.Add(1)
				c.cfg.Metrics.Hit(key.Resource())
				return cast[T](data)
			}
		}
		c.mu.Unlock()
		if attempt == 0 {
			c.misses.Add(1)
			c.cfg.Metrics.Miss(key.Resource())
		}

		ch := c.group.DoChan(id, c.flight(ctx, key, fetcher.erase(), o))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if errors.Is(res.Err, ErrSuperseded) {
				if attempt+1 < maxSupersededWaits {
					continue
				}
				return zero, ErrSuperseded
			}
			if res.Err != nil {
				return zero, res.Err
			}
			return cast[T](res.Val)
		}
	}
}

func mergeOptions(cur, next queryOptions) queryOptions {
	if next.staleTime != nil {
		cur.staleTime = next.staleTime
	}
	if next.retries != nil {
		cur.retries = next.retries
	}
	return cur
}

// Peek returns cached data for key without fetching, fresh or not.
func Peek[T any](c *Cache, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e := c.getLocked(key.String())
	if e == nil || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

// State is what a view renders for one key.
type State[T any] struct {
	Data      T
	HasData   bool
	Status    Status
	Err       error
	UpdatedAt time.Time
	// IsStale is true when data is past its staleness window or invalidated.
	IsStale bool
	// IsFetching is true while a request for the key is in flight.
	IsFetching bool
}

// IsLoading reports a first load: fetching with nothing to show yet.
func (s State[T]) IsLoading() bool {
	return s.Status == StatusLoading
}

// IsError reports that the latest fetch failed. Prior data, if any, is kept.
func (s State[T]) IsError() bool {
	return s.Status == StatusError
}

func stateOf[T any](s snapshot) State[T] {
	st := State[T]{
		HasData:    s.hasData,
		Status:     s.status,
		Err:        s.err,
		UpdatedAt:  s.updatedAt,
		IsStale:    s.stale,
		IsFetching: s.fetching,
	}
	if s.hasData {
		v, err := cast[T](s.data)
		if err != nil {
			st.HasData = false
			st.Status = StatusError
			st.Err = err
		}
		st.Data = v
	}
	return st
}

// Observer is a mounted view of one key. It receives every state change of
// the entry until Close.
type Observer[T any] struct {
	c   *Cache
	key Key

	mu      sync.Mutex
	state   State[T]
	updates chan State[T]
	closed  bool
}

// Observe mounts a view on key. A fetch is started in the background when
// the entry is missing or stale and no fetch is already running, so views
// mounted together share one request.
func Observe[T any](c *Cache, key Key, fetcher Fetcher[T], opts ...QueryOption) *Observer[T] {
	o := &Observer[T]{
		c:       c,
		key:     key,
		updates: make(chan State[T], 1),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	e := c.activateLocked(key)
	e.observers[o] = struct{}{}
	e.fetch = fetcher.erase()
	e.opts = mergeOptions(e.opts, buildOptions(opts))

	if c.isStaleLocked(e) {
		c.misses.Add(1)
		c.cfg.Metrics.Miss(key.Resource())
		if !e.fetching {
			c.launchLocked(e)
		}
	} else {
		c.hits.Add(1)
		c.cfg.Metrics.Hit(key.Resource())
	}
	o.deliver(c.snapshotLocked(e))
	return o
}

// Key returns the observed key.
func (o *Observer[T]) Key() Key {
	return o.key
}

// State returns the latest state.
func (o *Observer[T]) State() State[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Updates delivers state changes. Only the most recent undelivered state is
// kept. The channel is closed by Close.
func (o *Observer[T]) Updates() <-chan State[T] {
	return o.updates
}

// Refetch fetches the key again regardless of staleness, unless a fetch is
// already in flight.
func (o *Observer[T]) Refetch() {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return
	}

	c := o.c
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.active[o.key.String()]
	if !ok || e.fetching {
		return
	}
	c.launchLocked(e)
	c.broadcastLocked(e)
}

// Settled waits until no fetch is in flight for the key and returns that state.
func (o *Observer[T]) Settled(ctx context.Context) (State[T], error) {
	for {
		s := o.State()
		if !s.IsFetching {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return o.State(), ctx.Err()
		case _, ok := <-o.updates:
			if !ok {
				return o.State(), ErrClosed
			}
		}
	}
}

// Close unmounts the view. Later results for the key are not delivered to
// it, but an in-flight request still completes and updates the cache.
func (o *Observer[T]) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.updates)
	o.mu.Unlock()

	c := o.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.active[o.key.String()]; ok {
		delete(e.observers, o)
		c.settleLocked(e)
	}
}

func (o *Observer[T]) deliver(s snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.state = stateOf[T](s)
	select {
	case <-o.updates:
	default:
	}
	o.updates <- o.state
}
