// Package protocol defines the wire-level request and response shapes
// exchanged with brokers and the name server. Field semantics follow the
// MessagingService contract; the gRPC method names are preserved for
// compatibility with existing brokers.
package protocol

import "time"

// gRPC unary method names.
const (
	MethodSendMessage    = "/apache.rocketmq.v1.MessagingService/SendMessage"
	MethodQueryRoute     = "/apache.rocketmq.v1.MessagingService/QueryRoute"
	MethodEndTransaction = "/apache.rocketmq.v1.MessagingService/EndTransaction"
	MethodHeartbeat      = "/apache.rocketmq.v1.MessagingService/Heartbeat"
)

// Client identification reported on every request.
const (
	ProtocolVersion = "v1"
	ClientVersion   = "5.0.0"
)

// Code is the broker-side status code carried in every response. Values
// follow the google.rpc code space.
type Code int32

const (
	CodeOK               Code = 0
	CodeInvalidArgument  Code = 3
	CodeDeadlineExceeded Code = 4
	CodeNotFound         Code = 5
	CodePermissionDenied Code = 7
	CodeInternalError    Code = 13
	CodeUnavailable      Code = 14
	CodeUnauthenticated  Code = 16
)

// Encoding identifies how the message body is encoded on the wire.
type Encoding int32

const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingSnappy
)

func (e Encoding) String() string {
	switch e {
	case EncodingGzip:
		return "GZIP"
	case EncodingSnappy:
		return "SNAPPY"
	default:
		return "IDENTITY"
	}
}

// MessageType classifies a message for broker-side handling.
type MessageType int32

const (
	MessageTypeNormal MessageType = iota
	MessageTypeFifo
	MessageTypeDelay
	MessageTypeTransaction
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeFifo:
		return "FIFO"
	case MessageTypeDelay:
		return "DELAY"
	case MessageTypeTransaction:
		return "TRANSACTION"
	default:
		return "NORMAL"
	}
}

// Resource names an arn-scoped entity such as a topic or a producer group.
type Resource struct {
	Arn  string `json:"arn"`
	Name string `json:"name"`
}

// SystemAttribute carries the client-populated system fields of a message.
// At most one of DelayLevel and DeliveryTimestamp is set.
type SystemAttribute struct {
	Tag               string      `json:"tag,omitempty"`
	Keys              []string    `json:"keys,omitempty"`
	MessageID         string      `json:"message_id"`
	BodyEncoding      Encoding    `json:"body_encoding"`
	MessageType       MessageType `json:"message_type"`
	BornTimestamp     time.Time   `json:"born_timestamp"`
	BornHost          string      `json:"born_host"`
	ProducerGroup     Resource    `json:"producer_group"`
	DelayLevel        int32       `json:"delay_level,omitempty"`
	DeliveryTimestamp time.Time   `json:"delivery_timestamp,omitempty"`
	PartitionID       int32       `json:"partition_id"`
	TraceContext      string      `json:"trace_context,omitempty"`
}

// Message is the wire form of a user message.
type Message struct {
	Topic           Resource          `json:"topic"`
	SystemAttribute SystemAttribute   `json:"system_attribute"`
	UserAttribute   map[string]string `json:"user_attribute,omitempty"`
	Body            []byte            `json:"body"`
}

// Status is the broker verdict attached to every response.
type Status struct {
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
}

// ResponseCommon is shared by all responses.
type ResponseCommon struct {
	Status Status `json:"status"`
}

type SendMessageRequest struct {
	Message Message `json:"message"`
}

type SendMessageResponse struct {
	Common        ResponseCommon `json:"common"`
	MessageID     string         `json:"message_id"`
	TransactionID string         `json:"transaction_id,omitempty"`
	QueueOffset   int64          `json:"queue_offset,omitempty"`
}

type QueryRouteRequest struct {
	Topic Resource `json:"topic"`
}

// PartitionInfo is one routable partition as reported by the name server.
type PartitionInfo struct {
	Topic      Resource   `json:"topic"`
	ID         int32      `json:"id"`
	Permission int32      `json:"permission"`
	Broker     BrokerInfo `json:"broker"`
}

type BrokerInfo struct {
	Name      string        `json:"name"`
	ID        int32         `json:"id"`
	Endpoints EndpointsInfo `json:"endpoints"`
}

type EndpointsInfo struct {
	Addresses []AddressInfo `json:"addresses"`
}

type AddressInfo struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
}

type QueryRouteResponse struct {
	Common     ResponseCommon  `json:"common"`
	Partitions []PartitionInfo `json:"partitions"`
}

// TransactionResolution terminates a prepared transactional message.
type TransactionResolution int32

const (
	TransactionCommit TransactionResolution = iota
	TransactionRollback
)

func (r TransactionResolution) String() string {
	if r == TransactionRollback {
		return "ROLLBACK"
	}
	return "COMMIT"
}

type EndTransactionRequest struct {
	MessageID     string                `json:"message_id"`
	TransactionID string                `json:"transaction_id"`
	TraceContext  string                `json:"trace_context,omitempty"`
	Resolution    TransactionResolution `json:"resolution"`
}

type EndTransactionResponse struct {
	Common ResponseCommon `json:"common"`
}

// HeartbeatEntry announces a live producer group to a broker.
type HeartbeatEntry struct {
	ClientID      string   `json:"client_id"`
	ProducerGroup Resource `json:"producer_group"`
}

type HeartbeatRequest struct {
	Entries []HeartbeatEntry `json:"entries"`
}

type HeartbeatResponse struct {
	Common ResponseCommon `json:"common"`
}
