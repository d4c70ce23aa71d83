// Package cache is the keyed query and mutation layer every dashboard view
// reads through. Entries are fetched once per key, shared by all observers,
// marked stale by invalidation and refetched while observed.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"postraft-facade/internal/domain"
	"postraft-facade/internal/notify"
	"postraft-facade/internal/resilience"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultStaleTime = 60 * time.Second
	DefaultGCTime    = 5 * time.Minute
	DefaultMaxIdle   = 256
)

var (
	// ErrSuperseded is returned when a fetch kept losing to newer fetches.
	ErrSuperseded = errors.New("fetch superseded by a newer request")
	// ErrTypeMismatch is returned when a key is read with a different type than it was fetched with.
	ErrTypeMismatch = errors.New("cached data has a different type")
	// ErrClosed is returned by Fetch after Close.
	ErrClosed = errors.New("cache is closed")
)

// Status is the fetch status of an entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "idle"
	}
}

// Config holds cache configuration.
type Config struct {
	// StaleTime is how long fetched data is served without refetching.
	StaleTime time.Duration
	// GCTime is how long an unobserved entry is kept.
	GCTime time.Duration
	// MaxIdle bounds the number of unobserved entries.
	MaxIdle int
	// Retry applies to queries only; mutations are never retried.
	Retry    resilience.RetryPolicy
	Metrics  Metrics
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// CacheStats holds cache statistics.
type CacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Fetches       int64 `json:"fetches"`
	Invalidations int64 `json:"invalidations"`
	Active        int   `json:"active"`
	Idle          int   `json:"idle"`
}

// listener is implemented by Observer[T].
type listener interface {
	deliver(s snapshot)
}

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key Key
	id  string

	data      any
	hasData   bool
	status    Status
	err       error
	updatedAt time.Time
	stale     bool

	// seq identifies the newest fetch; results of older fetches are dropped.
	seq      uint64
	fetching bool

	observers map[listener]struct{}
	fetch     fetchFunc
	opts      queryOptions
	idleSince time.Time
}

type snapshot struct {
	data      any
	hasData   bool
	status    Status
	err       error
	updatedAt time.Time
	stale     bool
	fetching  bool
}

// Cache is safe for concurrent use. Create it with New and release it with Close.
type Cache struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu     sync.Mutex
	active map[string]*entry
	idle   *simplelru.LRU[string, *entry]
	closed bool

	group  singleflight.Group
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	hits          atomic.Int64
	misses        atomic.Int64
	fetches       atomic.Int64
	invalidations atomic.Int64
}

// New creates a cache with the given configuration.
func New(cfg Config) *Cache {
	if cfg.StaleTime < 0 {
		cfg.StaleTime = 0
	}
	if cfg.GCTime <= 0 {
		cfg.GCTime = DefaultGCTime
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = domain.IsRetryable
	}
	if cfg.Retry.RetryAfter == nil {
		cfg.Retry.RetryAfter = domain.RetryAfterOf
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// size is validated above, so NewLRU cannot fail
	idle, _ := simplelru.NewLRU[string, *entry](cfg.MaxIdle, nil)
	ctx, cancel := context.WithCancel(context.Background())

	return &Cache{
		cfg:    cfg,
		log:    log.With("component", "query_cache"),
		now:    time.Now,
		active: make(map[string]*entry),
		idle:   idle,
		ctx:    ctx,
		cancel: cancel,
	}
}

// DefaultConfig returns the configuration the dashboard runs with.
func DefaultConfig() Config {
	return Config{
		StaleTime: DefaultStaleTime,
		GCTime:    DefaultGCTime,
		MaxIdle:   DefaultMaxIdle,
		Retry:     resilience.DefaultRetryPolicy(),
	}
}

// Close cancels in-flight background fetches and waits for them to return.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	active, idle := len(c.active), c.idle.Len()
	c.mu.Unlock()

	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Fetches:       c.fetches.Load(),
		Invalidations: c.invalidations.Load(),
		Active:        active,
		Idle:          idle,
	}
}

// Invalidate marks every entry matching one of prefixes stale. In-flight
// fetches for those entries are superseded, and entries with live observers
// are refetched in the background. It returns the number of entries touched.
func (c *Cache) Invalidate(prefixes ...Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches := func(e *entry) bool {
		for _, p := range prefixes {
			if e.key.Matches(p) {
				return true
			}
		}
		return false
	}

	n := 0
	for _, e := range c.active {
		if !matches(e) {
			continue
		}
		n++
		c.invalidateLocked(e)
		if len(e.observers) > 0 && e.fetch != nil {
			c.launchLocked(e)
		}
		c.broadcastLocked(e)
		c.settleLocked(e)
	}
	for _, id := range c.idle.Keys() {
		e, ok := c.idle.Peek(id)
		if !ok || !matches(e) {
			continue
		}
		n++
		c.invalidateLocked(e)
	}
	return n
}

func (c *Cache) invalidateLocked(e *entry) {
	e.stale = true
	if e.fetching {
		e.seq++
		e.fetching = false
	}
	c.group.Forget(e.id)
	c.invalidations.Add(1)
	c.cfg.Metrics.Invalidated(e.key.Resource())
}

// Reset drops all cached data. Observed keys are kept as empty idle entries
// so their views render nothing until RefetchObserved (called by the session
// after the next sign-in) or Observer.Refetch loads them again; in-flight
// results are discarded.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, e := range c.active {
		c.group.Forget(id)
		if len(e.observers) == 0 {
			delete(c.active, id)
			c.cfg.Metrics.Evicted(EvictReset)
			continue
		}
		fresh := newEntry(e.key)
		fresh.observers = e.observers
		fresh.fetch = e.fetch
		fresh.opts = e.opts
		c.active[id] = fresh
		c.broadcastLocked(fresh)
	}
	for range c.idle.Len() {
		c.cfg.Metrics.Evicted(EvictReset)
	}
	c.idle.Purge()
}

// RefetchObserved marks every observed entry stale and fetches it again,
// unless a fetch is already running for it. It returns the number of
// fetches started.
func (c *Cache) RefetchObserved() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.active {
		if len(e.observers) == 0 || e.fetching || e.fetch == nil {
			continue
		}
		e.stale = true
		c.launchLocked(e)
		c.broadcastLocked(e)
		n++
	}
	return n
}

// Collect drops idle entries older than the GC window and returns how many were removed.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func newEntry(key Key) *entry {
	return &entry{
		key:       key,
		id:        key.String(),
		observers: make(map[listener]struct{}),
	}
}

// sweepLocked relies on idle entries being inserted in idleSince order.
func (c *Cache) sweepLocked() int {
	now := c.now()
	removed := 0
	for {
		id, e, ok := c.idle.GetOldest()
		if !ok || now.Sub(e.idleSince) < c.cfg.GCTime {
			return removed
		}
		c.idle.Remove(id)
		c.cfg.Metrics.Evicted(EvictExpired)
		removed++
	}
}

// getLocked returns the entry for id from either pool without moving it.
func (c *Cache) getLocked(id string) *entry {
	if e, ok := c.active[id]; ok {
		return e
	}
	if e, ok := c.idle.Peek(id); ok {
		return e
	}
	return nil
}

// activateLocked returns the entry for key, creating it or promoting it
// from the idle pool.
func (c *Cache) activateLocked(key Key) *entry {
	id := key.String()
	if e, ok := c.active[id]; ok {
		return e
	}
	if e, ok := c.idle.Peek(id); ok {
		c.idle.Remove(id)
		e.idleSince = time.Time{}
		c.active[id] = e
		return e
	}
	e := newEntry(key)
	c.active[id] = e
	return e
}

// settleLocked moves an entry with no observers and no fetch to the idle pool.
func (c *Cache) settleLocked(e *entry) {
	if len(e.observers) > 0 || e.fetching {
		return
	}
	if cur, ok := c.active[e.id]; !ok || cur != e {
		return
	}
	delete(c.active, e.id)
	e.idleSince = c.now()
	if c.idle.Add(e.id, e) {
		c.cfg.Metrics.Evicted(EvictCapacity)
	}
}

func (c *Cache) isStaleLocked(e *entry) bool {
	if e.stale || !e.hasData {
		return true
	}
	return c.now().Sub(e.updatedAt) >= c.staleTime(e.opts)
}

func (c *Cache) staleTime(o queryOptions) time.Duration {
	if o.staleTime != nil {
		return *o.staleTime
	}
	return c.cfg.StaleTime
}

func (c *Cache) snapshotLocked(e *entry) snapshot {
	return snapshot{
		data:      e.data,
		hasData:   e.hasData,
		status:    e.status,
		err:       e.err,
		updatedAt: e.updatedAt,
		stale:     e.hasData && c.isStaleLocked(e),
		fetching:  e.fetching,
	}
}

// broadcastLocked delivers under mu so observers see states in order.
// deliver never blocks.
func (c *Cache) broadcastLocked(e *entry) {
	if len(e.observers) == 0 {
		return
	}
	s := c.snapshotLocked(e)
	for l := range e.observers {
		l.deliver(s)
	}
}

// launchLocked starts a background fetch for e using its stored fetcher.
func (c *Cache) launchLocked(e *entry) {
	if c.closed || e.fetch == nil {
		return
	}
	e.fetching = true
	if !e.hasData {
		e.status = StatusLoading
	}
	key, fetch, opts := e.key, e.fetch, e.opts

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		res := <-c.group.DoChan(key.String(), c.flight(context.Background(), key, fetch, opts))
		if res.Err != nil && !errors.Is(res.Err, ErrSuperseded) {
			c.log.Debug("background fetch failed", "key", key.String(), "error", res.Err)
		}
	}()
}

// flight returns the singleflight body for one network fetch. The fetch runs
// on the cache's lifetime, not the caller's, so a caller giving up never
// cancels a request other observers share. Values such as the request id
// are kept from parent.
func (c *Cache) flight(parent context.Context, key Key, fetch fetchFunc, opts queryOptions) func() (any, error) {
	return func() (any, error) {
		ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
		stop := context.AfterFunc(c.ctx, cancel)
		defer func() {
			stop()
			cancel()
		}()
		return c.runFetch(ctx, key, fetch, opts)
	}
}

func (c *Cache) runFetch(ctx context.Context, key Key, fetch fetchFunc, opts queryOptions) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.activateLocked(key)
	e.seq++
	seq := e.seq
	e.fetching = true
	if !e.hasData {
		e.status = StatusLoading
	}
	c.broadcastLocked(e)
	c.mu.Unlock()

	policy := c.cfg.Retry
	if opts.retries != nil {
		policy.MaxRetries = *opts.retries
	}

	start := time.Now()
	data, err := resilience.Retry(ctx, policy, fetch)
	elapsed := time.Since(start)
	c.fetches.Add(1)
	c.cfg.Metrics.Fetched(key.Resource(), elapsed, err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.active[e.id]; !ok || cur != e || e.seq != seq {
		c.log.DebugContext(ctx, "discarding superseded fetch", "key", e.id)
		return nil, ErrSuperseded
	}

	e.fetching = false
	if err != nil {
		e.status = StatusError
		e.err = err
		// a record the API no longer has is absent, not stale
		if errors.Is(err, domain.ErrNotFound) {
			e.data = nil
			e.hasData = false
		}
		c.log.WarnContext(ctx, "query failed", "key", e.id, "error", err)
	} else {
		e.data = data
		e.hasData = true
		e.status = StatusSuccess
		e.err = nil
		e.updatedAt = c.now()
		e.stale = false
	}
	c.broadcastLocked(e)
	c.settleLocked(e)
	return data, err
}

func cast[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	return zero, fmt.Errorf("%w: got %T, want %T", ErrTypeMismatch, v, zero)
}
