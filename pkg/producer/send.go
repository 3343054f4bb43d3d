package producer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
	"github.com/zhiyin2021/rocketmq-clients/pkg/message"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
	"github.com/zhiyin2021/rocketmq-clients/pkg/tracing"
	"github.com/zhiyin2021/rocketmq-clients/pkg/utils"
)

// MessageCompressionThreshold is the body size above which the body is
// gzip-compressed before transmission.
const MessageCompressionThreshold = 1024 * 1024 * 4

// wrapSendMessageRequest builds the wire request for a message targeting
// the given partition. The request is built once per send; retries only
// substitute the partition id.
func (p *Producer) wrapSendMessageRequest(msg *message.Message, partition route.Partition) *protocol.SendMessageRequest {
	transactionFlag, _ := strconv.ParseBool(msg.Property(message.PropertyTransactionPrepared))

	attr := protocol.SystemAttribute{
		Tag:           msg.Tag,
		Keys:          msg.Keys,
		MessageID:     utils.CreateUniqueID(),
		MessageType:   protocol.MessageTypeNormal,
		BornTimestamp: time.Now(),
		BornHost:      utils.LocalIPv4(),
		ProducerGroup: protocol.Resource{Arn: p.cfg.Arn, Name: p.group},
		PartitionID:   partition.ID,
	}

	// Delay level wins over an absolute delivery timestamp; never set both.
	switch {
	case msg.DelayLevel > 0:
		attr.DelayLevel = msg.DelayLevel
		attr.MessageType = protocol.MessageTypeDelay
	case !msg.DeliveryTimestamp.IsZero():
		attr.DeliveryTimestamp = msg.DeliveryTimestamp
		attr.MessageType = protocol.MessageTypeDelay
	}
	if transactionFlag {
		attr.MessageType = protocol.MessageTypeTransaction
	}

	body := msg.Body
	attr.BodyEncoding = protocol.EncodingIdentity
	if len(body) > MessageCompressionThreshold {
		compressed, err := utils.GzipCompress(body, p.cfg.MessageCompressionLevel)
		if err != nil {
			// Non-fatal: ship the original bytes as identity.
			p.log.Warnw("failed to compress message body", "topic", msg.Topic, "error", err)
		} else {
			body = compressed
			attr.BodyEncoding = protocol.EncodingGzip
		}
	}

	return &protocol.SendMessageRequest{
		Message: protocol.Message{
			Topic:           protocol.Resource{Arn: p.cfg.Arn, Name: msg.Topic},
			SystemAttribute: attr,
			UserAttribute:   msg.Properties,
			Body:            body,
		},
	}
}

// sendTask drives one user message through up to maxAttempts RPC attempts
// across the candidate partitions. Attempts are strictly serial; the
// candidate list never mutates once the loop starts, and the partition of
// attempt i is candidates[i mod len(candidates)].
type sendTask struct {
	producer    *Producer
	future      *SendFuture
	candidates  []route.Partition
	request     *protocol.SendMessageRequest
	attempt     int
	maxAttempts int
}

// run loops attempts until success, a non-retriable error, or exhaustion.
// It is called on a dedicated goroutine per send.
func (t *sendTask) run(ctx context.Context) {
	p := t.producer
	for {
		partition := t.candidates[t.attempt%len(t.candidates)]

		metadata, err := client.Sign(&p.cfg, time.Now())
		if err != nil {
			// A credential problem will not heal between attempts.
			t.finish(nil, err)
			return
		}

		span := t.startAttemptSpan()
		resp, err := p.instance.SendMessage(ctx, partition.Broker.Endpoints, metadata, t.request)
		if err == nil {
			if code := resp.Common.Status.Code; code != protocol.CodeOK {
				err = client.NewError(client.KindBrokerRejected,
					fmt.Sprintf("broker returned code=%d message=%s", code, resp.Common.Status.Message), nil)
			}
		}
		if err == nil {
			tracing.EndSpan(span, nil)
			t.finish(t.interpretResponse(partition, resp), nil)
			return
		}
		tracing.EndSpan(span, err)

		if t.attempt+1 >= t.maxAttempts {
			p.log.Errorw("send failed, attempts exhausted",
				"topic", t.request.Message.Topic.Name,
				"messageId", t.request.Message.SystemAttribute.MessageID,
				"maxAttempts", t.maxAttempts,
				"error", err)
			t.finish(nil, err)
			return
		}
		p.log.Warnw("send attempt failed, rotating to next partition",
			"topic", t.request.Message.Topic.Name,
			"messageId", t.request.Message.SystemAttribute.MessageID,
			"attempt", t.attempt+1,
			"maxAttempts", t.maxAttempts,
			"error", err)

		// Substitute the next partition id; everything else, in particular
		// the message id, is preserved.
		t.attempt++
		next := t.candidates[t.attempt%len(t.candidates)]
		t.request.Message.SystemAttribute.PartitionID = next.ID
	}
}

func (t *sendTask) finish(result *SendResult, err error) {
	t.producer.metrics.RecordSend(err, t.attempt+1)
	if err != nil {
		t.future.fail(err)
		return
	}
	t.future.complete(result)
}

// interpretResponse turns a broker OK response into a SendResult. The
// broker may assign its own message id; fall back to the client-generated
// one when it does not.
func (t *sendTask) interpretResponse(partition route.Partition, resp *protocol.SendMessageResponse) *SendResult {
	messageID := resp.MessageID
	if messageID == "" {
		messageID = t.request.Message.SystemAttribute.MessageID
	}
	return &SendResult{
		MessageID:     messageID,
		PartitionID:   t.request.Message.SystemAttribute.PartitionID,
		QueueOffset:   resp.QueueOffset,
		TransactionID: resp.TransactionID,
	}
}

// startAttemptSpan opens a tracing span for the current attempt and injects
// its context into the outgoing system attributes. Returns nil when tracing
// is disabled.
func (t *sendTask) startAttemptSpan() trace.Span {
	p := t.producer
	if p.tracer == nil || !p.cfg.MessageTracingEnabled {
		return nil
	}
	attr := &t.request.Message.SystemAttribute
	span := tracing.StartSpan(p.tracer, tracing.SpanSendMessage,
		tracing.AttrArn.String(t.request.Message.Topic.Arn),
		tracing.AttrTopic.String(t.request.Message.Topic.Name),
		tracing.AttrMessageID.String(attr.MessageID),
		tracing.AttrGroup.String(attr.ProducerGroup.Name),
		tracing.AttrTag.String(attr.Tag),
		tracing.AttrKeys.StringSlice(attr.Keys),
		tracing.AttrBornHost.String(attr.BornHost),
		tracing.AttrMessageType.String(attr.MessageType.String()),
	)
	attr.TraceContext = tracing.InjectTraceParent(span.SpanContext())
	return span
}

// send0 is the asynchronous core every public send variant goes through:
// resolve the publish info, pick candidates, build the request once, then
// hand off to the attempt loop.
func (p *Producer) send0(msg *message.Message, maxAttempts int) *SendFuture {
	if !p.isRunning() {
		return failedSendFuture(client.ErrProducerNotStarted)
	}
	if msg.Topic == "" {
		return failedSendFuture(client.NewError(client.KindUnknown, "message topic must not be empty", nil))
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	future := newSendFuture()
	go func() {
		ctx := context.Background()
		info, err := p.getPublishInfo(ctx, msg.Topic)
		if err != nil {
			p.metrics.RecordSend(err, 0)
			future.fail(err)
			return
		}
		candidates, err := info.TakePartitions(p.instance.IsolatedEndpoints(), maxAttempts)
		if err != nil {
			p.metrics.RecordSend(err, 0)
			future.fail(err)
			return
		}
		task := &sendTask{
			producer:    p,
			future:      future,
			candidates:  candidates,
			request:     p.wrapSendMessageRequest(msg, candidates[0]),
			maxAttempts: maxAttempts,
		}
		task.run(ctx)
	}()
	return future
}
