package client

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhiyin2021/rocketmq-clients/internal/metrics"
	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/internal/transport"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
	"github.com/zhiyin2021/rocketmq-clients/pkg/utils"
)

var instanceSequence atomic.Uint32

// Instance is the per-identity client shared by every producer whose
// configuration carries the same arn. It owns the transport, the topic
// route cache and the endpoint isolation registry.
//
// Instances are created and started by a Manager; producers must not
// shut down an instance still in use by another producer.
type Instance struct {
	arn        string
	clientID   string
	cfg        Config
	nameserver route.Endpoints
	transport  transport.Transport
	routes     *routeCache
	isolation  *IsolationRegistry
	metrics    *metrics.Metrics
	log        *zap.SugaredLogger
	closed     atomic.Bool
}

func newInstance(cfg Config, tr transport.Transport, m *metrics.Metrics, log *zap.SugaredLogger) (*Instance, error) {
	nameserver, err := route.ParseEndpoints(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid name server endpoint: %w", err)
	}
	inst := &Instance{
		arn:        cfg.Arn,
		clientID:   fmt.Sprintf("%s@%d@%d", utils.Hostname(), os.Getpid(), instanceSequence.Add(1)),
		cfg:        cfg,
		nameserver: nameserver,
		transport:  tr,
		isolation:  NewIsolationRegistry(cfg.IsolationWindow),
		metrics:    m,
		log:        log,
	}
	inst.routes = newRouteCache(inst.fetchRoute)
	return inst, nil
}

// Arn returns the identity this instance is shared under.
func (i *Instance) Arn() string {
	return i.arn
}

// ClientID returns the process-unique client id reported in heartbeats.
func (i *Instance) ClientID() string {
	return i.clientID
}

func (i *Instance) start() {
	i.log.Infow("client instance started", "arn", i.arn, "clientId", i.clientID)
}

// Shutdown closes the transport. Callers must ensure no producer is still
// using the instance.
func (i *Instance) Shutdown() {
	if !i.closed.CompareAndSwap(false, true) {
		return
	}
	if err := i.transport.Close(); err != nil {
		i.log.Warnw("failed to close transport", "arn", i.arn, "error", err)
	}
	i.log.Infow("client instance shut down", "arn", i.arn)
}

// SendMessage dispatches one send attempt to the target broker with the
// configured I/O timeout. A transport-level failure isolates the target's
// endpoints and is reported as a transport failure; interpreting the broker
// status in the response is left to the caller.
func (i *Instance) SendMessage(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.IoTimeout)
	defer cancel()

	i.metrics.IncRPCInFlight()
	start := time.Now()
	resp, err := i.transport.SendMessage(ctx, target, md, req)
	i.metrics.DecRPCInFlight()
	i.metrics.RecordRPC(protocol.MethodSendMessage, err, time.Since(start).Seconds())

	if err != nil {
		i.isolate(target)
		return nil, NewError(KindTransportFailure, "send rpc failed", err)
	}
	return resp, nil
}

// EndTransaction dispatches the transaction terminator call.
func (i *Instance) EndTransaction(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.EndTransactionRequest) (*protocol.EndTransactionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.IoTimeout)
	defer cancel()

	start := time.Now()
	resp, err := i.transport.EndTransaction(ctx, target, md, req)
	i.metrics.RecordRPC(protocol.MethodEndTransaction, err, time.Since(start).Seconds())
	if err != nil {
		return nil, NewError(KindTransportFailure, "end transaction rpc failed", err)
	}
	return resp, nil
}

// Heartbeat announces the given entries to a broker.
func (i *Instance) Heartbeat(ctx context.Context, target route.Endpoints, entries ...protocol.HeartbeatEntry) error {
	md, err := Sign(&i.cfg, time.Now())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, i.cfg.IoTimeout)
	defer cancel()

	start := time.Now()
	resp, err := i.transport.Heartbeat(ctx, target, md, &protocol.HeartbeatRequest{Entries: entries})
	i.metrics.RecordRPC(protocol.MethodHeartbeat, err, time.Since(start).Seconds())
	if err != nil {
		return NewError(KindTransportFailure, "heartbeat rpc failed", err)
	}
	if resp.Common.Status.Code != protocol.CodeOK {
		return NewError(KindBrokerRejected,
			fmt.Sprintf("heartbeat rejected: code=%d message=%s", resp.Common.Status.Code, resp.Common.Status.Message), nil)
	}
	return nil
}

// GetRouteFor returns the route future for a topic; concurrent callers for
// an uncached topic share one underlying query.
func (i *Instance) GetRouteFor(ctx context.Context, topic string) *RouteFuture {
	return i.routes.GetRoute(ctx, topic)
}

// UpdateTopicRoute overwrites the cached route for a topic, e.g. from a
// periodic refresh or a server push.
func (i *Instance) UpdateTopicRoute(topic string, data *route.TopicRouteData) {
	i.routes.put(topic, data)
}

// fetchRoute performs the route query against the name server.
func (i *Instance) fetchRoute(ctx context.Context, topic string) (*route.TopicRouteData, error) {
	md, err := Sign(&i.cfg, time.Now())
	if err != nil {
		i.metrics.RecordRouteFetch(err)
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, i.cfg.IoTimeout)
	defer cancel()

	req := &protocol.QueryRouteRequest{Topic: protocol.Resource{Arn: i.arn, Name: topic}}
	start := time.Now()
	resp, err := i.transport.QueryRoute(ctx, i.nameserver, md, req)
	i.metrics.RecordRPC(protocol.MethodQueryRoute, err, time.Since(start).Seconds())
	if err != nil {
		i.metrics.RecordRouteFetch(err)
		return nil, NewError(KindRouteResolution, fmt.Sprintf("failed to query route for topic %s", topic), err)
	}
	if code := resp.Common.Status.Code; code != protocol.CodeOK {
		err := NewError(KindRouteResolution,
			fmt.Sprintf("route query for topic %s rejected: code=%d message=%s", topic, code, resp.Common.Status.Message), nil)
		i.metrics.RecordRouteFetch(err)
		return nil, err
	}
	i.metrics.RecordRouteFetch(nil)
	return convertRoute(resp.Partitions), nil
}

func convertRoute(partitions []protocol.PartitionInfo) *route.TopicRouteData {
	data := &route.TopicRouteData{Partitions: make([]route.Partition, 0, len(partitions))}
	for _, p := range partitions {
		addrs := make([]route.Address, 0, len(p.Broker.Endpoints.Addresses))
		for _, a := range p.Broker.Endpoints.Addresses {
			addrs = append(addrs, route.Address{Host: a.Host, Port: a.Port})
		}
		data.Partitions = append(data.Partitions, route.Partition{
			Topic:      p.Topic.Name,
			ID:         p.ID,
			Permission: route.Permission(p.Permission),
			Broker: route.Broker{
				Name:      p.Broker.Name,
				ID:        p.Broker.ID,
				Endpoints: route.Endpoints{Addresses: addrs},
			},
		})
	}
	return data
}

func (i *Instance) isolate(target route.Endpoints) {
	i.isolation.Isolate(target)
	i.metrics.SetIsolatedEndpoints(i.isolation.Size())
	i.log.Warnw("isolated endpoints after transport failure", "target", target.Key())
}

// Isolation exposes the endpoint isolation registry.
func (i *Instance) Isolation() *IsolationRegistry {
	return i.isolation
}

// IsolatedEndpoints returns a point-in-time snapshot of isolated endpoint keys.
func (i *Instance) IsolatedEndpoints() map[string]struct{} {
	return i.isolation.Snapshot()
}

// Config returns the configuration the instance was created with.
func (i *Instance) Config() Config {
	return i.cfg
}
