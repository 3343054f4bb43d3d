// Package transport dispatches unary RPCs to brokers and the name server.
//
// The Transport interface is the seam the send pipeline is tested against;
// the gRPC implementation manages one client connection per endpoint set.
package transport

import (
	"context"

	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

// Transport performs unary calls against a remote target. Every call honors
// the context deadline and attaches the given metadata headers to the
// request. Implementations must be safe for concurrent use.
type Transport interface {
	SendMessage(ctx context.Context, target route.Endpoints, metadata map[string]string,
		req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error)

	QueryRoute(ctx context.Context, target route.Endpoints, metadata map[string]string,
		req *protocol.QueryRouteRequest) (*protocol.QueryRouteResponse, error)

	EndTransaction(ctx context.Context, target route.Endpoints, metadata map[string]string,
		req *protocol.EndTransactionRequest) (*protocol.EndTransactionResponse, error)

	Heartbeat(ctx context.Context, target route.Endpoints, metadata map[string]string,
		req *protocol.HeartbeatRequest) (*protocol.HeartbeatResponse, error)

	// Close releases all connections. The transport is unusable afterwards.
	Close() error
}
