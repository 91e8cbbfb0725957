// Package query caches backend reads per key, shares in-flight fetches and
// applies the staleness, retry and invalidation rules the UI relies on.
package query

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultStaleTime is how long fetched data is served without refetching.
	DefaultStaleTime = 30 * time.Second
	// DefaultRetry is the number of retries after a failed first attempt.
	DefaultRetry = 1
	// DefaultRetryDelay is the first backoff interval between attempts.
	DefaultRetryDelay = 200 * time.Millisecond

	maxRetryDelay = 30 * time.Second
)

// ErrTypeMismatch is returned when one key is read with two different result types.
var ErrTypeMismatch = errors.New("query: cached value has a different type")

// Status is the fetch status of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// Options configures a Cache.
type Options struct {
	StaleTime  time.Duration
	Retry      int
	RetryDelay time.Duration

	// OnUnauthorized is called after every fetch or mutation that ends in HTTP 401.
	OnUnauthorized func(error)

	// Now overrides the clock.
	Now func() time.Time
}

// DefaultOptions returns the options used by the application.
func DefaultOptions() Options {
	return Options{
		StaleTime:  DefaultStaleTime,
		Retry:      DefaultRetry,
		RetryDelay: DefaultRetryDelay,
	}
}

type loader func(context.Context) (any, error)

type entry struct {
	key       Key
	value     any
	hasValue  bool
	err       error
	status    Status
	updatedAt time.Time

	// gen advances on every invalidation; a fetch that started before the
	// latest invalidation does not make the entry valid again.
	gen         uint64
	invalidated bool
}

// Cache is the process-wide read cache. Construct one with New and share it.
type Cache struct {
	opts    Options
	log     *zerolog.Logger
	metrics *metrics
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry

	background sync.WaitGroup
}

// New creates a cache. reg may be nil to skip metric registration.
func New(opts Options, logger *zerolog.Logger, reg prometheus.Registerer) *Cache {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Cache{
		opts:    opts,
		log:     logger,
		metrics: newMetrics(reg),
		entries: make(map[string]*entry),
	}
}

// Fetch returns the value for key, calling fn only when needed.
//
// Fresh data is returned as is. Data older than the stale time is returned
// immediately while one background refetch runs. Invalidated or missing data
// blocks on a fetch shared by every concurrent caller of the same key.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	load := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}

	c.mu.Lock()
	if e, ok := c.entries[key.String()]; ok && e.hasValue && !e.invalidated {
		if v, ok := e.value.(T); ok {
			fresh := c.opts.Now().Sub(e.updatedAt) < c.opts.StaleTime
			c.mu.Unlock()
			c.metrics.hits.Inc()
			if !fresh {
				c.refetch(ctx, key, load)
			}
			return v, nil
		}
	}
	c.mu.Unlock()

	var zero T
	v, err := c.load(ctx, key, load)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrTypeMismatch, key)
	}
	return typed, nil
}

// Mutate runs a write and invalidates the given key prefixes only if it succeeds.
// Mutations are not retried and never update cached reads directly.
func Mutate[T any](ctx context.Context, c *Cache, fn func(context.Context) (T, error), invalidate ...Key) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		c.notifyUnauthorized(err)
		return v, err
	}
	for _, k := range invalidate {
		c.Invalidate(k)
	}
	return v, nil
}

// State is what a consumer sees for one key.
type State[T any] struct {
	Data      T
	HasData   bool
	IsLoading bool
	IsError   bool
	IsStale   bool
	Err       error
	UpdatedAt time.Time
}

// Observe reports the current state of key without fetching.
func Observe[T any](c *Cache, key Key) State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	var st State[T]
	e, ok := c.entries[key.String()]
	if !ok {
		return st
	}
	if v, ok := e.value.(T); ok && e.hasValue {
		st.Data = v
		st.HasData = true
	}
	st.IsLoading = e.status == StatusLoading
	st.IsError = e.status == StatusError
	st.Err = e.err
	st.UpdatedAt = e.updatedAt
	st.IsStale = e.invalidated || c.opts.Now().Sub(e.updatedAt) >= c.opts.StaleTime
	return st
}

// Invalidate marks every entry whose key starts with prefix as needing a
// refetch on next access. It returns the number of entries affected.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.invalidated = true
			e.gen++
			n++
		}
	}
	if n > 0 {
		c.log.Debug().Str("prefix", prefix.String()).Int("entries", n).Msg("query invalidated")
	}
	return n
}

// Reset drops every entry, like a full page reload.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// generation returns how often key has been invalidated and whether it
// currently holds valid data.
func (c *Cache) generation(key Key) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || !e.hasValue {
		return 0, false
	}
	return e.gen, !e.invalidated
}

// Wait blocks until background refetches started so far have finished.
func (c *Cache) Wait() {
	c.background.Wait()
}

// load joins or starts the shared fetch for key. The fetch itself ignores the
// cancellation of whichever caller started it; each caller stops waiting when
// its own ctx is done.
func (c *Cache) load(ctx context.Context, key Key, fn loader) (any, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		return c.run(shared, key, fn)
	})
	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.dedup.Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) refetch(ctx context.Context, key Key, fn loader) {
	bgCtx := context.WithoutCancel(ctx)

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if _, err := c.load(bgCtx, key, fn); err != nil {
			c.log.Warn().Err(err).Str("key", key.String()).Msg("background refetch failed")
		}
	}()
}

// run executes one (retried) fetch and records its outcome.
func (c *Cache) run(ctx context.Context, key Key, fn loader) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.status = StatusLoading
	startGen := e.gen
	c.mu.Unlock()

	c.metrics.fetches.WithLabelValues(key.Resource()).Inc()
	v, err := c.withRetry(ctx, key, fn)

	c.mu.Lock()
	e = c.entryLocked(key)
	if err != nil {
		e.err = err
		e.status = StatusError
	} else {
		e.value = v
		e.hasValue = true
		e.err = nil
		e.status = StatusSuccess
		e.updatedAt = c.opts.Now()
		e.invalidated = e.gen != startGen
	}
	c.mu.Unlock()

	if err != nil {
		c.notifyUnauthorized(err)
	}
	return v, err
}

func (c *Cache) withRetry(ctx context.Context, key Key, fn loader) (any, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.RetryDelay
	b.MaxInterval = maxRetryDelay

	attempt := 0
	op := func() (any, error) {
		attempt++
		if attempt > 1 {
			c.metrics.retries.Inc()
			c.log.Debug().Str("key", key.String()).Int("attempt", attempt).Msg("retrying fetch")
		}
		v, err := fn(ctx)
		if err != nil && !Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.opts.Retry+1)),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	return v, err
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) notifyUnauthorized(err error) {
	if c.opts.OnUnauthorized != nil && IsUnauthorized(err) {
		c.opts.OnUnauthorized(err)
	}
}

// statusCoder is implemented by errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// IsUnauthorized reports whether err carries HTTP 401.
func IsUnauthorized(err error) bool {
	var sc statusCoder
	return errors.As(err, &sc) && sc.HTTPStatus() == http.StatusUnauthorized
}

// Retryable reports whether a failed read may be attempted again.
// 401 and other client errors are final; 408, 429, 5xx and transport
// failures are transient. Context cancellation is final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		switch {
		case status == http.StatusUnauthorized:
			return false
		case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
			return true
		case status >= 400 && status < 500:
			return false
		}
	}
	return true
}
