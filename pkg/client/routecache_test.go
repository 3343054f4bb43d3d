package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

func testRouteData(ids ...int32) *route.TopicRouteData {
	data := &route.TopicRouteData{}
	for _, id := range ids {
		data.Partitions = append(data.Partitions, route.Partition{
			Topic:      "topic-test",
			ID:         id,
			Permission: route.PermissionReadWrite,
		})
	}
	return data
}

func TestRouteCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var fetches atomic.Int32
	cache := newRouteCache(func(ctx context.Context, topic string) (*route.TopicRouteData, error) {
		fetches.Add(1)
		<-release
		return testRouteData(0, 1), nil
	})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*route.TopicRouteData, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := cache.GetRoute(context.Background(), "topic-test").Await(context.Background())
			require.NoError(t, err)
			results[i] = data
		}(i)
	}

	// Let every caller join the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load())
	for _, data := range results {
		assert.Same(t, results[0], data)
	}
}

func TestRouteCache_FailureIsNotCached(t *testing.T) {
	var fetches atomic.Int32
	cache := newRouteCache(func(ctx context.Context, topic string) (*route.TopicRouteData, error) {
		if fetches.Add(1) == 1 {
			return nil, errors.New("name server down")
		}
		return testRouteData(0), nil
	})

	_, err := cache.GetRoute(context.Background(), "topic-test").Await(context.Background())
	require.Error(t, err)

	data, err := cache.GetRoute(context.Background(), "topic-test").Await(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Partitions, 1)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestRouteCache_SuccessIsCached(t *testing.T) {
	var fetches atomic.Int32
	cache := newRouteCache(func(ctx context.Context, topic string) (*route.TopicRouteData, error) {
		fetches.Add(1)
		return testRouteData(0), nil
	})

	for i := 0; i < 3; i++ {
		_, err := cache.GetRoute(context.Background(), "topic-test").Await(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetches.Load())
}

func TestRouteCache_PerTopicFetches(t *testing.T) {
	var fetches atomic.Int32
	cache := newRouteCache(func(ctx context.Context, topic string) (*route.TopicRouteData, error) {
		fetches.Add(1)
		return testRouteData(0), nil
	})

	_, err := cache.GetRoute(context.Background(), "topic-a").Await(context.Background())
	require.NoError(t, err)
	_, err = cache.GetRoute(context.Background(), "topic-b").Await(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), fetches.Load())
}

func TestRouteCache_RefreshOverwrites(t *testing.T) {
	cache := newRouteCache(func(ctx context.Context, topic string) (*route.TopicRouteData, error) {
		return testRouteData(0), nil
	})

	_, err := cache.GetRoute(context.Background(), "topic-test").Await(context.Background())
	require.NoError(t, err)

	refreshed := testRouteData(0, 1, 2)
	cache.put("topic-test", refreshed)

	data, ok := cache.cached("topic-test")
	require.True(t, ok)
	assert.Same(t, refreshed, data)
}

func TestRouteCache_FetchOutlivesLaunchingCaller(t *testing.T) {
	release := make(chan struct{})
	cache := newRouteCache(func(ctx context.Context, topic string) (*route.TopicRouteData, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return testRouteData(0), nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	future := cache.GetRoute(ctx, "topic-test")
	cancel()

	// A second caller joins the same in-flight fetch and must still succeed.
	joined := cache.GetRoute(context.Background(), "topic-test")
	close(release)

	data, err := joined.Await(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Partitions, 1)

	_, err = future.Await(context.Background())
	assert.NoError(t, err)
}
