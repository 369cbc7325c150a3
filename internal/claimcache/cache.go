// Package claimcache holds the latest reconciled claim views per wallet and
// network and announces every refresh on an event bus.
package claimcache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"golang.org/x/sync/singleflight"

	"github.com/Klingon-tech/codewallet/internal/claims"
	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// TopicUpdated is published with (wallet, network, views) after each refetch
// whose result is cached.
const TopicUpdated = "claims:updated"

// DefaultTTL is how long fetched views are served without refetching.
const DefaultTTL = 30 * time.Second

// Reconciler produces fresh views. *claims.Ledger satisfies it.
type Reconciler interface {
	ReconcileAll(ctx context.Context, wallet types.Address, network types.Network) ([]claims.View, error)
}

// Handler receives refreshed views.
type Handler func(wallet types.Address, network types.Network, views []claims.View)

type entry struct {
	views     []claims.View
	fetchedAt time.Time
}

// Cache is the single owner of reconciled views. Concurrent refetches of the
// same wallet and network share one reconcile.
type Cache struct {
	src Reconciler
	bus EventBus.Bus
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	gens    map[string]uint64 // bumped by Invalidate
	flight  singleflight.Group

	prefetching sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl >= 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithBus publishes on an existing bus instead of a private one.
func WithBus(bus EventBus.Bus) Option {
	return func(c *Cache) { c.bus = bus }
}

// New creates a cache over src.
func New(src Reconciler, opts ...Option) *Cache {
	c := &Cache{
		src:     src,
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = EventBus.New()
	}
	return c
}

func cacheKey(wallet types.Address, network types.Network) string {
	return wallet.Hex() + "/" + string(network)
}

// Get returns cached views younger than the TTL, refetching otherwise.
func (c *Cache) Get(ctx context.Context, wallet types.Address, network types.Network) ([]claims.View, error) {
	return c.Refetch(ctx, wallet, network, false)
}

// Peek returns cached views without fetching, regardless of age.
func (c *Cache) Peek(wallet types.Address, network types.Network) ([]claims.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(wallet, network)]
	if !ok {
		return nil, false
	}
	return slices.Clone(e.views), true
}

// Refetch reconciles unless fresh views are cached. force always reconciles.
// Subscribers are notified after every reconcile.
func (c *Cache) Refetch(ctx context.Context, wallet types.Address, network types.Network, force bool) ([]claims.View, error) {
	key := cacheKey(wallet, network)
	if !force {
		if views, ok := c.fresh(key); ok {
			log.Cache.Debug().Str("wallet", wallet.Short()).Str("network", network.String()).Msg("Claims cache hit")
			return slices.Clone(views), nil
		}
	} else {
		c.flight.Forget(key)
	}

	v, err, shared := c.flight.Do(key, func() (any, error) {
		// A flight may have finished between the check above and Do.
		if !force {
			if views, ok := c.fresh(key); ok {
				return views, nil
			}
		}
		c.mu.Lock()
		gen := c.gens[key]
		c.mu.Unlock()

		views, err := c.src.ReconcileAll(ctx, wallet, network)
		if err != nil {
			return nil, err
		}

		// A result that started before an Invalidate may predate the change
		// that caused it. Hand it to the waiting callers but do not keep it.
		c.mu.Lock()
		current := c.gens[key] == gen
		if current {
			c.entries[key] = entry{views: views, fetchedAt: c.now()}
		}
		c.mu.Unlock()
		if !current {
			log.Cache.Debug().Str("wallet", wallet.Short()).Str("network", network.String()).Msg("Discarded superseded claims result")
			return views, nil
		}
		c.bus.Publish(TopicUpdated, wallet, network, slices.Clone(views))
		return views, nil
	})
	if err != nil {
		log.Cache.Warn().Err(err).Str("wallet", wallet.Short()).Str("network", network.String()).Msg("Claims refetch failed")
		return nil, err
	}
	log.Cache.Debug().Str("wallet", wallet.Short()).Str("network", network.String()).Bool("shared", shared).Msg("Claims refetched")
	return slices.Clone(v.([]claims.View)), nil
}

func (c *Cache) fresh(key string) ([]claims.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.views, true
}

// Prefetch refreshes in the background and drops the result. Errors are
// logged by Refetch.
func (c *Cache) Prefetch(wallet types.Address, network types.Network) {
	c.prefetching.Add(1)
	go func() {
		defer c.prefetching.Done()
		c.Refetch(context.Background(), wallet, network, false)
	}()
}

// Wait blocks until background prefetches have finished.
func (c *Cache) Wait() {
	c.prefetching.Wait()
}

// Invalidate drops cached views so the next Get reconciles. A reconcile
// already in flight is not cached when it completes, and later callers do
// not join it.
func (c *Cache) Invalidate(wallet types.Address, network types.Network) {
	c.invalidate(cacheKey(wallet, network))
}

// InvalidateWallet drops cached views of wallet on every network.
func (c *Cache) InvalidateWallet(wallet types.Address) {
	for _, n := range types.Networks {
		c.invalidate(cacheKey(wallet, n))
	}
}

func (c *Cache) invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.flight.Forget(key)
}

// Subscribe registers fn for TopicUpdated and returns a function removing it.
// Handlers run synchronously on the refetching goroutine and must not
// unsubscribe from inside the callback.
func (c *Cache) Subscribe(fn Handler) (func(), error) {
	if err := c.bus.Subscribe(TopicUpdated, fn); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := c.bus.Unsubscribe(TopicUpdated, fn); err != nil {
				log.Cache.Debug().Err(err).Msg("Unsubscribe")
			}
		})
	}, nil
}
