package producer

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
	"github.com/zhiyin2021/rocketmq-clients/pkg/message"
	"github.com/zhiyin2021/rocketmq-clients/pkg/utils"
)

// ============================================================================
// Attempt loop
// ============================================================================

func TestSend_FirstAttemptSucceeds(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	result, err := p.Send(message.New("topic-test", []byte("payload")))
	require.NoError(t, err)
	require.NotNil(t, result)

	calls := ft.sentCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, calls[0].MessageID, result.MessageID)
	assert.Equal(t, calls[0].PartitionID, result.PartitionID)
	assert.Equal(t, int64(42), result.QueueOffset)
}

func TestSend_BrokerRejectsUntilExhaustion(t *testing.T) {
	ft := &fakeTransport{
		onSend: func(n int, req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
			return &protocol.SendMessageResponse{
				Common: protocol.ResponseCommon{Status: protocol.Status{
					Code: protocol.CodeInternalError, Message: "boom",
				}},
			}, nil
		},
	}
	p := newTestProducer(t, ft)

	_, err := p.Send(message.New("topic-test", []byte("payload")))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrBrokerRejected)

	calls := ft.sentCalls()
	require.Len(t, calls, 3)

	// The message id is stable across retries; the partition rotates.
	seen := make(map[int32]struct{})
	for _, call := range calls {
		assert.Equal(t, calls[0].MessageID, call.MessageID)
		seen[call.PartitionID] = struct{}{}
	}
	assert.Len(t, seen, 3)
	for i := 1; i < len(calls); i++ {
		assert.Equal(t, (calls[i-1].PartitionID+1)%3, calls[i].PartitionID)
	}
}

func TestSend_TransportFailureThenSuccess(t *testing.T) {
	ft := &fakeTransport{
		onSend: func(n int, req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
			if n == 0 {
				return nil, errors.New("connection reset")
			}
			return okSendResponse(), nil
		},
	}
	p := newTestProducer(t, ft)

	result, err := p.Send(message.New("topic-test", []byte("payload")))
	require.NoError(t, err)
	require.NotNil(t, result)

	calls := ft.sentCalls()
	require.Len(t, calls, 2)
	assert.NotEqual(t, calls[0].Target.Key(), calls[1].Target.Key())
}

func TestSend_TransportFailureIsolatesEndpoints(t *testing.T) {
	ft := &fakeTransport{
		onSend: func(n int, req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
			if n == 0 {
				return nil, errors.New("connection reset")
			}
			return okSendResponse(), nil
		},
	}
	p := newTestProducer(t, ft)

	_, err := p.Send(message.New("topic-test", []byte("payload")))
	require.NoError(t, err)

	isolated := p.instance.IsolatedEndpoints()
	require.Len(t, isolated, 1)
	assert.Contains(t, isolated, ft.sentCalls()[0].Target.Key())
}

func TestSend_SigningFailureIsNotRetried(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)
	p.cfg.CredentialsProvider = brokenProvider{}

	_, err := p.Send(message.New("topic-test", []byte("payload")))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrSigningFailure)
	assert.Zero(t, ft.sendCallCount())
}

type brokenProvider struct{}

func (brokenProvider) Credentials() (client.Credentials, error) {
	return client.Credentials{}, errors.New("vault unreachable")
}

func TestSend_RouteResolutionFailure(t *testing.T) {
	ft := &fakeTransport{
		onRoute: func(n int, req *protocol.QueryRouteRequest) (*protocol.QueryRouteResponse, error) {
			return nil, errors.New("name server down")
		},
	}
	p := newTestProducer(t, ft)

	_, err := p.Send(message.New("topic-test", []byte("payload")))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrRouteResolution)
	assert.Zero(t, ft.sendCallCount())
}

func TestSend_NoWritablePartition(t *testing.T) {
	ft := &fakeTransport{
		onRoute: func(n int, req *protocol.QueryRouteRequest) (*protocol.QueryRouteResponse, error) {
			resp := testRouteResponse(1)
			resp.Partitions[0].Permission = int32(0)
			return resp, nil
		},
	}
	p := newTestProducer(t, ft)

	_, err := p.Send(message.New("topic-test", []byte("payload")))
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrNoWritablePartition)
}

func TestSendOneway_SingleAttempt(t *testing.T) {
	ft := &fakeTransport{
		onSend: func(n int, req *protocol.SendMessageRequest) (*protocol.SendMessageResponse, error) {
			return nil, errors.New("connection reset")
		},
	}
	p := newTestProducer(t, ft)

	p.SendOneway(message.New("topic-test", []byte("payload")))

	// One-way sends never retry, even on failure.
	require.Eventually(t, func() bool { return ft.sendCallCount() >= 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ft.sendCallCount())
}

// ============================================================================
// Request building
// ============================================================================

func TestWrapSendMessageRequest_SmallBodyIsIdentity(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	body := bytes.Repeat([]byte{0}, 1024)
	result, err := p.Send(&message.Message{Topic: "topic-test", Body: body})
	require.NoError(t, err)
	require.NotNil(t, result)

	call := ft.sentCalls()[0]
	assert.Equal(t, protocol.EncodingIdentity, call.Encoding)
	assert.Equal(t, body, call.Body)
}

func TestWrapSendMessageRequest_OversizedBodyIsGzipped(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	body := bytes.Repeat([]byte{0}, 8*1024*1024)
	_, err := p.Send(&message.Message{Topic: "topic-test", Body: body})
	require.NoError(t, err)

	call := ft.sentCalls()[0]
	assert.Equal(t, protocol.EncodingGzip, call.Encoding)
	assert.Less(t, len(call.Body), len(body)/100)

	decompressed, err := utils.GzipDecompress(call.Body)
	require.NoError(t, err)
	assert.Equal(t, body, decompressed)
}

func TestWrapSendMessageRequest_DelayLevelWinsOverDeliveryTimestamp(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	msg := &message.Message{
		Topic:             "topic-test",
		Body:              []byte("payload"),
		DelayLevel:        3,
		DeliveryTimestamp: time.Now().Add(time.Hour),
	}
	req := p.wrapSendMessageRequest(msg, NewPublishInfo(distinctBrokerRoute(1)).Partitions()[0])

	attr := req.Message.SystemAttribute
	assert.Equal(t, int32(3), attr.DelayLevel)
	assert.True(t, attr.DeliveryTimestamp.IsZero())
	assert.Equal(t, protocol.MessageTypeDelay, attr.MessageType)
}

func TestWrapSendMessageRequest_DeliveryTimestampAlone(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	deliverAt := time.Now().Add(time.Hour)
	msg := &message.Message{Topic: "topic-test", Body: []byte("payload"), DeliveryTimestamp: deliverAt}
	req := p.wrapSendMessageRequest(msg, NewPublishInfo(distinctBrokerRoute(1)).Partitions()[0])

	attr := req.Message.SystemAttribute
	assert.Zero(t, attr.DelayLevel)
	assert.Equal(t, deliverAt, attr.DeliveryTimestamp)
	assert.Equal(t, protocol.MessageTypeDelay, attr.MessageType)
}

func TestWrapSendMessageRequest_TransactionFlag(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	msg := message.New("topic-test", []byte("payload")).
		WithProperty(message.PropertyTransactionPrepared, "true")
	req := p.wrapSendMessageRequest(msg, NewPublishInfo(distinctBrokerRoute(1)).Partitions()[0])

	assert.Equal(t, protocol.MessageTypeTransaction, req.Message.SystemAttribute.MessageType)
	assert.Equal(t, "true", req.Message.UserAttribute[message.PropertyTransactionPrepared])
}

func TestWrapSendMessageRequest_SystemAttributes(t *testing.T) {
	ft := &fakeTransport{}
	p := newTestProducer(t, ft)

	msg := &message.Message{
		Topic: "topic-test",
		Body:  []byte("payload"),
		Tag:   "tag-a",
		Keys:  []string{"k1", "k2"},
	}
	partition := NewPublishInfo(distinctBrokerRoute(2)).Partitions()[1]
	req := p.wrapSendMessageRequest(msg, partition)

	attr := req.Message.SystemAttribute
	assert.Equal(t, "arn-test", req.Message.Topic.Arn)
	assert.Equal(t, "topic-test", req.Message.Topic.Name)
	assert.Equal(t, "group-test", attr.ProducerGroup.Name)
	assert.Equal(t, partition.ID, attr.PartitionID)
	assert.NotEmpty(t, attr.MessageID)
	assert.NotEmpty(t, attr.BornHost)
	assert.False(t, attr.BornTimestamp.IsZero())
	assert.Equal(t, "tag-a", attr.Tag)
	assert.Equal(t, []string{"k1", "k2"}, attr.Keys)
	assert.Equal(t, protocol.MessageTypeNormal, attr.MessageType)
}
