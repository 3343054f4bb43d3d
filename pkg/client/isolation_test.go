package client

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

func endpointsOf(host string) route.Endpoints {
	return route.Endpoints{Addresses: []route.Address{{Host: host, Port: 8080}}}
}

func TestIsolationRegistry_IsolateAndSnapshot(t *testing.T) {
	r := NewIsolationRegistry(time.Minute)
	a := endpointsOf("10.0.0.1")
	b := endpointsOf("10.0.0.2")

	r.Isolate(a)
	r.Isolate(b)

	snapshot := r.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Contains(t, snapshot, a.Key())
	assert.Contains(t, snapshot, b.Key())
}

func TestIsolationRegistry_Unisolate(t *testing.T) {
	r := NewIsolationRegistry(time.Minute)
	a := endpointsOf("10.0.0.1")

	r.Isolate(a)
	r.Unisolate(a)

	assert.Empty(t, r.Snapshot())
}

func TestIsolationRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewIsolationRegistry(time.Minute)
	a := endpointsOf("10.0.0.1")
	r.Isolate(a)

	snapshot := r.Snapshot()
	r.Isolate(endpointsOf("10.0.0.2"))

	assert.Len(t, snapshot, 1)
}

func TestIsolationRegistry_EntriesExpire(t *testing.T) {
	r := NewIsolationRegistry(30 * time.Second)
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }

	r.Isolate(endpointsOf("10.0.0.1"))
	require.Len(t, r.Snapshot(), 1)

	now = now.Add(31 * time.Second)
	assert.Empty(t, r.Snapshot())
}

func TestIsolationRegistry_ReisolateExtendsWindow(t *testing.T) {
	r := NewIsolationRegistry(30 * time.Second)
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	r.clock = func() time.Time { return now }
	a := endpointsOf("10.0.0.1")

	r.Isolate(a)
	now = now.Add(20 * time.Second)
	r.Isolate(a)
	now = now.Add(20 * time.Second)

	assert.Len(t, r.Snapshot(), 1)
}

func TestIsolationRegistry_ConcurrentAccess(t *testing.T) {
	r := NewIsolationRegistry(time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				e := endpointsOf(fmt.Sprintf("10.0.%d.%d", g, i%4))
				r.Isolate(e)
				r.Snapshot()
				r.Unisolate(e)
			}
		}(g)
	}
	wg.Wait()
}
