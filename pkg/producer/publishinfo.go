package producer

import (
	"math/rand"
	"sync/atomic"

	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

// PublishInfo is a producer-local view of a topic's writable partitions
// plus the rotation cursor for round-robin selection.
//
// The cursor is per-producer-per-topic, not per-call, so successive sends
// rotate through partitions. It is seeded randomly at construction to keep
// a fleet of fresh producers from hot-spotting partition 0, and wraps
// harmlessly via the modulo in TakePartitions.
type PublishInfo struct {
	partitions []route.Partition
	cursor     atomic.Uint64
}

// NewPublishInfo builds the publish view of a route: writable partitions
// only, route order preserved.
func NewPublishInfo(data *route.TopicRouteData) *PublishInfo {
	info := &PublishInfo{partitions: data.WritablePartitions()}
	info.cursor.Store(rand.Uint64())
	return info
}

// Partitions returns the writable partitions. Callers must treat the slice
// as read-only.
func (p *PublishInfo) Partitions() []route.Partition {
	return p.partitions
}

func (p *PublishInfo) next() uint64 {
	return p.cursor.Add(1) - 1
}

// TakePartitions picks up to count candidate partitions for one send by
// advancing the rotation cursor.
//
// Partitions whose broker endpoints appear in isolated are skipped on the
// first pass, and a broker already chosen in this call is not chosen again,
// so retries land on distinct brokers whenever the route allows it. The
// result may be shorter than count when fewer distinct brokers are
// reachable; the attempt loop wraps around it. When every target is
// isolated the pick falls back to plain rotation over all partitions, since
// isolation is advisory and failing fast here would turn a transient broker
// problem into a guaranteed send failure.
//
// Fails with NoWritablePartition when the route has no writable partitions.
func (p *PublishInfo) TakePartitions(isolated map[string]struct{}, count int) ([]route.Partition, error) {
	n := len(p.partitions)
	if n == 0 {
		return nil, client.ErrNoWritablePartition
	}

	candidates := make([]route.Partition, 0, count)
	chosenBrokers := make(map[string]struct{}, count)
	for i := 0; i < n && len(candidates) < count; i++ {
		partition := p.partitions[p.next()%uint64(n)]
		key := partition.Broker.Endpoints.Key()
		if _, bad := isolated[key]; bad {
			continue
		}
		if _, dup := chosenBrokers[key]; dup {
			continue
		}
		chosenBrokers[key] = struct{}{}
		candidates = append(candidates, partition)
	}
	if len(candidates) > 0 {
		return candidates, nil
	}

	// Everything is isolated: rotate through all partitions best-effort.
	for i := 0; i < count; i++ {
		candidates = append(candidates, p.partitions[p.next()%uint64(n)])
	}
	return candidates, nil
}
