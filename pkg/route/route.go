// Package route holds the topic route model shared by producers: broker
// addresses, partitions and the per-topic route data returned by the name
// server.
package route

import (
	"fmt"
	"sort"
	"strings"
)

// Permission describes what a client may do with a partition.
type Permission int32

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionWrite
	PermissionReadWrite
)

// IsWritable reports whether messages may be published to a partition with
// this permission.
func (p Permission) IsWritable() bool {
	return p == PermissionWrite || p == PermissionReadWrite
}

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "READ"
	case PermissionWrite:
		return "WRITE"
	case PermissionReadWrite:
		return "READ_WRITE"
	default:
		return "NONE"
	}
}

// Address is a single host:port pair of a broker.
type Address struct {
	Host string
	Port int32
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Endpoints is the address set of a remote broker. Equality is structural on
// the address set; Key returns a canonical form usable as a map key, so two
// Endpoints with the same addresses in different order compare equal.
type Endpoints struct {
	Addresses []Address
}

// Key returns the canonical string form of the address set.
func (e Endpoints) Key() string {
	addrs := make([]string, 0, len(e.Addresses))
	for _, a := range e.Addresses {
		addrs = append(addrs, a.String())
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ";")
}

func (e Endpoints) String() string {
	return e.Key()
}

// Empty reports whether the endpoint set has no addresses.
func (e Endpoints) Empty() bool {
	return len(e.Addresses) == 0
}

// RpcTarget identifies the broker a request is dispatched to.
type RpcTarget struct {
	Endpoints Endpoints
}

// Broker is the owning broker of a partition as reported by the route query.
type Broker struct {
	Name      string
	ID        int32
	Endpoints Endpoints
}

// Partition is a broker-owned shard of a topic, the unit of routing for a
// send. Identity is (Topic, ID). Partitions are produced by the route fetch
// and consumed read-only by producers.
type Partition struct {
	Topic      string
	ID         int32
	Permission Permission
	Broker     Broker
}

// Target returns the rpc target the partition's broker is reachable at.
func (p Partition) Target() RpcTarget {
	return RpcTarget{Endpoints: p.Broker.Endpoints}
}

func (p Partition) String() string {
	return fmt.Sprintf("%s-%d@%s", p.Topic, p.ID, p.Broker.Endpoints.Key())
}

// TopicRouteData is the ordered partition list of a topic as delivered by
// the route service.
type TopicRouteData struct {
	Partitions []Partition
}

// WritablePartitions returns the partitions messages may be published to,
// preserving route order.
func (d *TopicRouteData) WritablePartitions() []Partition {
	writable := make([]Partition, 0, len(d.Partitions))
	for _, p := range d.Partitions {
		if p.Permission.IsWritable() {
			writable = append(writable, p)
		}
	}
	return writable
}
