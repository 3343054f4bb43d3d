package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpcmetadata "google.golang.org/grpc/metadata"

	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

// GrpcTransport dispatches unary calls over gRPC client connections.
//
// Connections are cached by the canonical endpoint key. We assume the
// address set of a broker does not change for the lifetime of the key; a
// replaced broker shows up under a new key.
type GrpcTransport struct {
	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
	log   *zap.SugaredLogger
}

// NewGrpcTransport creates an empty transport; connections are dialed
// lazily on first use of each target.
func NewGrpcTransport(log *zap.SugaredLogger) *GrpcTransport {
	return &GrpcTransport{
		conns: make(map[string]*grpc.ClientConn),
		log:   log,
	}
}

// conn returns a cached connection for the target or dials a new one.
func (t *GrpcTransport) conn(target route.Endpoints) (*grpc.ClientConn, error) {
	if target.Empty() {
		return nil, fmt.Errorf("empty endpoint set")
	}
	key := target.Key()

	// Optimistic read; most calls hit an existing connection.
	t.mu.RLock()
	conn, ok := t.conns[key]
	t.mu.RUnlock()
	if ok {
		return conn, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// We may have lost a race and someone already dialed, check again while
	// holding the exclusive lock.
	if conn, ok = t.conns[key]; ok {
		return conn, nil
	}

	addr := target.Addresses[0].String()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", addr, err)
	}
	t.conns[key] = conn
	t.log.Debugw("dialed broker", "target", key)
	return conn, nil
}

func (t *GrpcTransport) invoke(ctx context.Context, target route.Endpoints, md map[string]string,
	method string, req, resp any) error {
	conn, err := t.conn(target)
	if err != nil {
		return err
	}
	ctx = grpcmetadata.NewOutgoingContext(ctx, grpcmetadata.New(md))
	if err := conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(jsonCodec{})); err != nil {
		return fmt.Errorf("rpc %s to %s failed: %w", method, target.Key(), err)
	}
	return nil
}

func (t *GrpcTransport) SendMessage(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
	var resp protocol.SendMessageResponse
	if err := t.invoke(ctx, target, md, protocol.MethodSendMessage, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *GrpcTransport) QueryRoute(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.QueryRouteRequest) (*protocol.QueryRouteResponse, error) {
	var resp protocol.QueryRouteResponse
	if err := t.invoke(ctx, target, md, protocol.MethodQueryRoute, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *GrpcTransport) EndTransaction(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.EndTransactionRequest) (*protocol.EndTransactionResponse, error) {
	var resp protocol.EndTransactionResponse
	if err := t.invoke(ctx, target, md, protocol.MethodEndTransaction, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (t *GrpcTransport) Heartbeat(ctx context.Context, target route.Endpoints, md map[string]string,
	req *protocol.HeartbeatRequest) (*protocol.HeartbeatResponse, error) {
	var resp protocol.HeartbeatResponse
	if err := t.invoke(ctx, target, md, protocol.MethodHeartbeat, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close closes every cached connection, keeping the first error.
func (t *GrpcTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for key, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection to %s: %w", key, err)
		}
		delete(t.conns, key)
	}
	return firstErr
}
