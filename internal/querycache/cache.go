// Package querycache caches remote reads by key with request deduplication,
// stale-while-revalidate refreshes, bounded retries, and prefix
// invalidation.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

// Defaults match the client's reference configuration.
const (
	DefaultStaleTime   = 5 * time.Minute
	DefaultRetry       = 2
	DefaultLoadTimeout = time.Minute
)

// Fetcher loads the value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Options configure a Cache.
type Options struct {
	StaleTime time.Duration
	Retry     int
	// LoadTimeout bounds a shared load. It runs apart from the caller
	// that started it so one cancelled caller does not fail the rest.
	LoadTimeout time.Duration
	// BackOff builds the delay policy between retries.
	BackOff func() backoff.BackOff
	Now     func() time.Time
	Logger  *slog.Logger
}

type entry struct {
	key        Key
	value      any
	fetchedAt  time.Time
	valid      bool
	refreshing bool
	gen        uint64
}

// Cache is safe for concurrent use. Close stops background refreshes.
type Cache struct {
	opts  Options
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry

	lmu       sync.Mutex
	listeners map[int]listener
	nextID    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type listener struct {
	prefix Key
	fn     func(Key)
}

// New creates a Cache.
func New(opts Options) *Cache {
	if opts.StaleTime <= 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.BackOff == nil {
		opts.BackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = observability.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		opts:      opts,
		entries:   make(map[string]*entry),
		listeners: make(map[int]listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Fetch returns the cached value for key, loading it with fn when missing
// or invalidated. A stale value is returned immediately and refreshed in
// the background. Concurrent loads of one key share a single call; a
// caller whose ctx ends stops waiting without cancelling the others.
func (c *Cache) Fetch(ctx context.Context, key Key, fn Fetcher) (any, error) {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	if ok && e.valid {
		value := e.value
		if c.opts.Now().Sub(e.fetchedAt) >= c.opts.StaleTime && !e.refreshing {
			e.refreshing = true
			c.wg.Add(1)
			go c.refresh(key, fn)
		}
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan(id, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.LoadTimeout)
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()
		return c.load(lctx, key, fn)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get is the typed form of Fetch.
func Get[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache) load(ctx context.Context, key Key, fn Fetcher) (any, error) {
	id := key.String()
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key}
		c.entries[id] = e
	}
	gen := e.gen
	c.mu.Unlock()

	v, err := c.withRetry(ctx, fn)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// A load that raced an invalidation does not repopulate the entry.
	if e.gen == gen {
		e.value = v
		e.fetchedAt = c.opts.Now()
		e.valid = true
	}
	c.mu.Unlock()

	c.notify(key)
	return v, nil
}

func (c *Cache) refresh(key Key, fn Fetcher) {
	defer c.wg.Done()
	id := key.String()

	_, err, _ := c.group.Do(id, func() (any, error) {
		return c.load(c.ctx, key, fn)
	})

	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		e.refreshing = false
	}
	c.mu.Unlock()

	if err != nil {
		c.opts.Logger.Warn("background refresh failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Cache) withRetry(ctx context.Context, fn Fetcher) (any, error) {
	op := func() (any, error) {
		v, err := fn(ctx)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return v, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.opts.BackOff()),
		backoff.WithMaxTries(uint(c.opts.Retry+1)),
	)
}

// retryable excludes failures that a second attempt cannot fix.
func retryable(err error) bool {
	for _, code := range []string{
		models.CodeValidation,
		models.CodeDecode,
		models.CodeNotFound,
		models.CodeForbidden,
		models.CodeUnauth,
	} {
		if models.HasCode(err, code) {
			return false
		}
	}
	return true
}

// Peek returns the cached value for key without loading.
func (c *Cache) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.valid {
		return nil, false
	}
	return e.value, true
}

// Invalidate marks every entry under prefix so the next read reloads it.
// Entries outside prefix are untouched.
func (c *Cache) Invalidate(prefix Key) {
	var hit []Key
	c.mu.Lock()
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.valid = false
			e.gen++
			c.group.Forget(id)
			hit = append(hit, e.key)
		}
	}
	c.mu.Unlock()

	for _, k := range hit {
		c.notify(k)
	}
}

// Mutation names the keys a completed write has made stale.
type Mutation struct {
	Invalidate []Key
}

// Merge combines the invalidations of m and other.
func (m Mutation) Merge(other Mutation) Mutation {
	return Mutation{Invalidate: append(append([]Key{}, m.Invalidate...), other.Invalidate...)}
}

// Apply invalidates every key named by m.
func (c *Cache) Apply(m Mutation) {
	for _, k := range m.Invalidate {
		c.Invalidate(k)
	}
}

// Subscribe calls fn with the key of every entry under prefix that is
// reloaded or invalidated. The returned func unsubscribes.
func (c *Cache) Subscribe(prefix Key, fn func(Key)) func() {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener{prefix: prefix, fn: fn}
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Cache) notify(key Key) {
	c.lmu.Lock()
	var fns []func(Key)
	for _, l := range c.listeners {
		if key.HasPrefix(l.prefix) {
			fns = append(fns, l.fn)
		}
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Close cancels background refreshes and waits for them to stop.
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}
