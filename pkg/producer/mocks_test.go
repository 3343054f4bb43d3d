package producer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/internal/transport"
	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

// sendCall records one SendMessage dispatch observed by the fake transport.
type sendCall struct {
	Target      route.Endpoints
	MessageID   string
	PartitionID int32
	Encoding    protocol.Encoding
	Body        []byte
}

// fakeTransport scripts RPC outcomes and records every dispatch.
type fakeTransport struct {
	mu         sync.Mutex
	sendCalls  []sendCall
	routeCalls int

	// onSend decides the outcome of the nth send attempt (0-based). The
	// default acknowledges with CodeOK.
	onSend func(n int, req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error)
	// onRoute overrides the route answer; the default is three writable
	// partitions on three distinct brokers.
	onRoute    func(n int, req *protocol.QueryRouteRequest) (*protocol.QueryRouteResponse, error)
	routeDelay time.Duration
}

func okSendResponse() *protocol.SendMessageResponse {
	return &protocol.SendMessageResponse{
		Common:      protocol.ResponseCommon{Status: protocol.Status{Code: protocol.CodeOK}},
		QueueOffset: 42,
	}
}

func testRouteResponse(partitions int) *protocol.QueryRouteResponse {
	resp := &protocol.QueryRouteResponse{
		Common: protocol.ResponseCommon{Status: protocol.Status{Code: protocol.CodeOK}},
	}
	for i := 0; i < partitions; i++ {
		resp.Partitions = append(resp.Partitions, protocol.PartitionInfo{
			Topic:      protocol.Resource{Arn: "arn-test", Name: "topic-test"},
			ID:         int32(i),
			Permission: int32(route.PermissionReadWrite),
			Broker: protocol.BrokerInfo{
				Name: string(rune('a' + i)),
				Endpoints: protocol.EndpointsInfo{
					Addresses: []protocol.AddressInfo{{Host: "10.0.0." + string(rune('1'+i)), Port: 8080}},
				},
			},
		})
	}
	return resp
}

func (f *fakeTransport) SendMessage(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
	f.mu.Lock()
	n := len(f.sendCalls)
	f.sendCalls = append(f.sendCalls, sendCall{
		Target:      target,
		MessageID:   req.Message.SystemAttribute.MessageID,
		PartitionID: req.Message.SystemAttribute.PartitionID,
		Encoding:    req.Message.SystemAttribute.BodyEncoding,
		Body:        req.Message.Body,
	})
	handler := f.onSend
	f.mu.Unlock()

	if handler != nil {
		return handler(n, req)
	}
	return okSendResponse(), nil
}

func (f *fakeTransport) QueryRoute(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.QueryRouteRequest) (*protocol.QueryRouteResponse, error) {
	f.mu.Lock()
	n := f.routeCalls
	f.routeCalls++
	handler := f.onRoute
	delay := f.routeDelay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if handler != nil {
		return handler(n, req)
	}
	return testRouteResponse(3), nil
}

func (f *fakeTransport) EndTransaction(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.EndTransactionRequest) (*protocol.EndTransactionResponse, error) {
	return &protocol.EndTransactionResponse{
		Common: protocol.ResponseCommon{Status: protocol.Status{Code: protocol.CodeOK}},
	}, nil
}

func (f *fakeTransport) Heartbeat(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.HeartbeatRequest) (*protocol.HeartbeatResponse, error) {
	return &protocol.HeartbeatResponse{
		Common: protocol.ResponseCommon{Status: protocol.Status{Code: protocol.CodeOK}},
	}, nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sendCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

func (f *fakeTransport) sentCalls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.sendCalls...)
}

func (f *fakeTransport) routeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.routeCalls
}

func testConfig() client.Config {
	return client.Config{
		Arn:      "arn-test",
		Group:    "group-test",
		Endpoint: "127.0.0.1:9876",
	}
}

// newTestProducer builds a started producer whose instance dispatches to
// the fake transport.
func newTestProducer(t *testing.T, ft *fakeTransport, opts ...Option) *Producer {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()
	manager := client.NewManager(log, client.WithTransportFactory(
		func(cfg client.Config, _ *zap.SugaredLogger) (transport.Transport, error) {
			return ft, nil
		}))
	opts = append([]Option{WithLogger(log), WithManager(manager)}, opts...)
	p, err := New(testConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	t.Cleanup(func() { _ = p.Shutdown() })
	return p
}
