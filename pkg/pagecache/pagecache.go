package pagecache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is a keyed entry store. Implementations must be safe for concurrent
// use. Staleness is not a store concern: stale entries stay retrievable so
// they can be served while regeneration is pending.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
}

// Producer computes a cache entry on a miss or during revalidation.
// hasResolved is true when a stale entry was already served to the client and
// the production only feeds the cache. Returning a nil entry with a nil error
// means the producer wrote the response directly and nothing is cached.
type Producer func(ctx context.Context, hasResolved bool) (*Entry, error)

// Hooks receives cache lifecycle notifications, used for instrumentation.
// Any field may be nil.
type Hooks struct {
	Hit            func(key string)
	Miss           func(key string)
	Stale          func(key string)
	Bypass         func()
	RevalidateDone func(key string, err error)
}

// Cache coordinates concurrent renders against the entry stores.
type Cache struct {
	store   Store
	durable Store
	logger  *slog.Logger
	hooks   Hooks
	now     func() time.Time

	group singleflight.Group

	mu           sync.Mutex
	revalidating map[string]bool

	// wg tracks detached revalidations so tests and shutdown can drain them.
	wg sync.WaitGroup
}

// Option configures the cache.
type Option func(*Cache)

// WithDurable mirrors committed entries to a durable store, consulted before
// a miss is declared so cached output survives process restarts.
func WithDurable(store Store) Option {
	return func(c *Cache) { c.durable = store }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithHooks sets instrumentation hooks.
func WithHooks(hooks Hooks) Option {
	return func(c *Cache) { c.hooks = hooks }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache backed by the given in-memory store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:        store,
		logger:       slog.Default(),
		now:          time.Now,
		revalidating: map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get resolves the entry for key, producing it when necessary.
//
//   - An empty key bypasses the cache entirely: the producer runs and its
//     result is returned uncached.
//   - A fresh entry is returned as-is.
//   - A stale entry is returned immediately while exactly one detached
//     regeneration runs; a failed regeneration never evicts the stale entry.
//   - On a miss, concurrent callers for the same key coalesce onto a single
//     producer invocation and all observe that exact production.
func (c *Cache) Get(ctx context.Context, key string, produce Producer) (*Entry, error) {
	if key == "" {
		if c.hooks.Bypass != nil {
			c.hooks.Bypass()
		}
		return produce(ctx, false)
	}

	entry := c.lookup(ctx, key)
	if entry != nil {
		if !entry.Stale(c.now()) {
			if c.hooks.Hit != nil {
				c.hooks.Hit(key)
			}
			return entry, nil
		}
		if c.hooks.Stale != nil {
			c.hooks.Stale(key)
		}
		c.revalidate(ctx, key, produce)
		return entry, nil
	}

	if c.hooks.Miss != nil {
		c.hooks.Miss(key)
	}

	// The production is promised to every coalesced waiter, so it must not
	// die with the first caller's request context.
	produceCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(key, func() (any, error) {
		entry, err := produce(produceCtx, false)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return (*Entry)(nil), nil
		}
		c.commit(produceCtx, key, entry)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate drops the entry for key from every store.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidate failed", "key", key, "error", err)
	}
	if c.durable != nil {
		if err := c.durable.Delete(ctx, key); err != nil {
			c.logger.Warn("durable invalidate failed", "key", key, "error", err)
		}
	}
}

// Wait blocks until all detached revalidations have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// lookup checks the in-memory store and then the durable store. A durable hit
// is promoted into memory.
func (c *Cache) lookup(ctx context.Context, key string) *Entry {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if ok {
		return entry
	}
	if c.durable == nil {
		return nil
	}
	entry, ok, err = c.durable.Get(ctx, key)
	if err != nil {
		c.logger.Warn("durable read failed", "key", key, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Warn("cache promote failed", "key", key, "error", err)
	}
	return entry
}

// commit stores a produced entry. Entries marked never-cacheable are skipped.
func (c *Cache) commit(ctx context.Context, key string, entry *Entry) {
	if entry.Revalidate < 0 {
		return
	}
	if entry.ProducedAt.IsZero() {
		entry.ProducedAt = c.now()
	}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	if c.durable != nil {
		if err := c.durable.Set(ctx, key, entry); err != nil {
			c.logger.Warn("durable write failed", "key", key, "error", err)
		}
	}
}

// revalidate starts at most one detached regeneration for key. The triggering
// request is never blocked and never sees a regeneration failure; the stale
// entry stays served until a new value successfully commits.
func (c *Cache) revalidate(ctx context.Context, key string, produce Producer) {
	c.mu.Lock()
	if c.revalidating[key] {
		c.mu.Unlock()
		return
	}
	c.revalidating[key] = true
	c.mu.Unlock()

	bgCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.revalidating, key)
			c.mu.Unlock()
		}()

		_, err, _ := c.group.Do(key, func() (any, error) {
			entry, err := produce(bgCtx, true)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				c.commit(bgCtx, key, entry)
			}
			return entry, nil
		})
		if err != nil {
			c.logger.Error("background revalidation failed, serving stale entry", "key", key, "error", err)
		}
		if c.hooks.RevalidateDone != nil {
			c.hooks.RevalidateDone(key, err)
		}
	}()
}
