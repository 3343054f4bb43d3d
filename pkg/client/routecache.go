package client

import (
	"context"
	"sync"

	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

// RouteFuture is the pending result of a topic route fetch. It completes
// exactly once; all waiters observe the same outcome.
type RouteFuture struct {
	done  chan struct{}
	once  sync.Once
	route *route.TopicRouteData
	err   error
}

func newRouteFuture() *RouteFuture {
	return &RouteFuture{done: make(chan struct{})}
}

func resolvedRouteFuture(data *route.TopicRouteData) *RouteFuture {
	f := newRouteFuture()
	f.complete(data, nil)
	return f
}

func (f *RouteFuture) complete(data *route.TopicRouteData, err error) {
	f.once.Do(func() {
		f.route = data
		f.err = err
		close(f.done)
	})
}

// Done is closed when the future has completed.
func (f *RouteFuture) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the fetch completes or the context is done.
func (f *RouteFuture) Await(ctx context.Context) (*route.TopicRouteData, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.route, f.err
	}
}

// routeFetcher performs the underlying route query RPC for one topic.
type routeFetcher func(ctx context.Context, topic string) (*route.TopicRouteData, error)

// routeCache is the per-instance lazy topic route cache shared by all
// producers on the same client instance.
//
// GetRoute single-flights: concurrent callers for the same uncached topic
// receive the same future backed by exactly one RPC. Failures are not
// cached, so the next call retries. External refresh overwrites entries
// atomically via put.
type routeCache struct {
	mu       sync.Mutex
	routes   map[string]*route.TopicRouteData
	inflight map[string]*RouteFuture
	fetch    routeFetcher
}

func newRouteCache(fetch routeFetcher) *routeCache {
	return &routeCache{
		routes:   make(map[string]*route.TopicRouteData),
		inflight: make(map[string]*RouteFuture),
		fetch:    fetch,
	}
}

// GetRoute returns the cached route as a resolved future, joins an in-flight
// fetch, or launches a new one.
func (c *routeCache) GetRoute(ctx context.Context, topic string) *RouteFuture {
	c.mu.Lock()
	if data, ok := c.routes[topic]; ok {
		c.mu.Unlock()
		return resolvedRouteFuture(data)
	}
	if pending, ok := c.inflight[topic]; ok {
		c.mu.Unlock()
		return pending
	}
	future := newRouteFuture()
	c.inflight[topic] = future
	c.mu.Unlock()

	go func() {
		// The fetch serves every waiter, not just the caller that launched
		// it, so it must outlive the launching caller's cancellation.
		data, err := c.fetch(context.WithoutCancel(ctx), topic)

		c.mu.Lock()
		delete(c.inflight, topic)
		if err == nil {
			c.routes[topic] = data
		}
		c.mu.Unlock()

		future.complete(data, err)
	}()
	return future
}

// put overwrites the cached route for a topic, e.g. on periodic refresh.
func (c *routeCache) put(topic string, data *route.TopicRouteData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[topic] = data
}

// cached returns the cached route without triggering a fetch.
func (c *routeCache) cached(topic string) (*route.TopicRouteData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.routes[topic]
	return data, ok
}
