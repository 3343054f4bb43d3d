// Package producer implements the message producer: lifecycle management,
// the public send surface (sync, async, one-way) and the asynchronous
// retry pipeline behind it.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/zhiyin2021/rocketmq-clients/internal/metrics"
	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
	"github.com/zhiyin2021/rocketmq-clients/pkg/message"
	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
	"github.com/zhiyin2021/rocketmq-clients/pkg/tracing"
)

// State is the producer lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateReady
	StateStarted
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateStarted:
		return "STARTED"
	case StateStopping:
		return "STOPPING"
	default:
		return "CREATED"
	}
}

// TransactionResolution terminates a prepared transactional message.
type TransactionResolution int

const (
	TransactionCommit TransactionResolution = iota
	TransactionRollback
)

// Producer publishes messages to topics hosted by remote brokers.
//
// A producer must be started before sending and shut down when no longer
// needed; both transitions are idempotent. All send variants are safe for
// concurrent use.
type Producer struct {
	cfg   client.Config
	group string

	stateMu sync.Mutex
	state   atomic.Int32

	manager  *client.Manager
	instance *client.Instance

	publishMu   sync.RWMutex
	publishInfo map[string]*PublishInfo

	callbacks         *callbackExecutor
	callbackQueueSize int

	tracer  trace.Tracer
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// Option customizes a Producer.
type Option func(*Producer)

// WithLogger sets the logger; the default is a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Producer) { p.log = log }
}

// WithManager sets the client manager the producer obtains its shared
// client instance from. Producers handed the same manager and the same arn
// share one instance.
func WithManager(m *client.Manager) Option {
	return func(p *Producer) { p.manager = m }
}

// WithTracer enables message tracing spans. Tracing also requires
// Config.MessageTracingEnabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(p *Producer) { p.tracer = tracer }
}

// WithMetrics attaches producer metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Producer) { p.metrics = m }
}

// WithCallbackQueueSize bounds the async-callback queue. When the queue is
// full, completions block until user callbacks drain.
func WithCallbackQueueSize(n int) Option {
	return func(p *Producer) { p.callbackQueueSize = n }
}

// New creates a producer for the config's group. The producer is in state
// CREATED; call Start before sending.
func New(cfg client.Config, opts ...Option) (*Producer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}
	p := &Producer{
		cfg:         cfg,
		group:       cfg.Group,
		publishInfo: make(map[string]*PublishInfo),
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.manager == nil {
		p.manager = client.NewManager(p.log, client.WithMetrics(p.metrics))
	}
	return p, nil
}

// Group returns the producer group name.
func (p *Producer) Group() string {
	return p.group
}

// State returns the current lifecycle state.
func (p *Producer) State() State {
	return State(p.state.Load())
}

func (p *Producer) compareAndSetState(from, to State) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// Start transitions the producer to STARTED: it binds the shared client
// instance for the configured arn and brings up the callback executor.
// Starting an already-started producer is a logged no-op.
func (p *Producer) Start() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.log.Infow("starting producer", "arn", p.cfg.Arn, "group", p.group)
	if !p.compareAndSetState(StateCreated, StateReady) {
		p.log.Warnw("producer has been started before", "group", p.group)
		return nil
	}

	instance, err := p.manager.GetClientInstance(p.cfg)
	if err != nil {
		p.compareAndSetState(StateReady, StateCreated)
		return fmt.Errorf("failed to get client instance: %w", err)
	}
	p.instance = instance
	p.callbacks = newCallbackExecutor(p.callbackQueueSize, p.log)

	p.compareAndSetState(StateReady, StateStarted)
	p.log.Infow("producer started", "arn", p.cfg.Arn, "group", p.group, "clientId", instance.ClientID())
	return nil
}

// Shutdown transitions the producer out of STARTED. In-flight sends drain;
// the callback executor stops accepting work and finishes what is already
// queued. Shutting down a producer that is not started is a logged no-op.
func (p *Producer) Shutdown() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.log.Infow("shutting down producer", "group", p.group)
	if !p.compareAndSetState(StateStarted, StateStopping) {
		p.log.Warnw("producer has not been started before", "group", p.group)
		return nil
	}
	p.callbacks.shutdown()
	p.compareAndSetState(StateStopping, StateReady)
	p.log.Infow("producer shut down", "group", p.group)
	return nil
}

func (p *Producer) isRunning() bool {
	return p.State() == StateStarted
}

// getPublishInfo returns the cached publish view for a topic, resolving the
// route on a miss. Two concurrent misses may both build a PublishInfo;
// last-writer-wins is fine because the route fetch single-flights and both
// see the same partition set.
func (p *Producer) getPublishInfo(ctx context.Context, topic string) (*PublishInfo, error) {
	p.publishMu.RLock()
	info, ok := p.publishInfo[topic]
	p.publishMu.RUnlock()
	if ok {
		return info, nil
	}

	data, err := p.instance.GetRouteFor(ctx, topic).Await(ctx)
	if err != nil {
		if client.KindOf(err) == client.KindUnknown {
			err = client.NewError(client.KindRouteResolution, fmt.Sprintf("failed to resolve route for topic %s", topic), err)
		}
		return nil, err
	}

	info = NewPublishInfo(data)
	p.publishMu.Lock()
	p.publishInfo[topic] = info
	p.publishMu.Unlock()
	return info, nil
}

// Send publishes a message and blocks until the broker acknowledges it or
// the configured send timeout elapses.
func (p *Producer) Send(msg *message.Message) (*SendResult, error) {
	return p.SendWithTimeout(msg, p.cfg.SendMessageTimeout)
}

// SendWithTimeout publishes a message and blocks up to timeout. A typed
// client error from the pipeline is returned as is; anything else is
// wrapped. On timeout the in-flight attempt may still complete remotely.
func (p *Producer) SendWithTimeout(msg *message.Message, timeout time.Duration) (*SendResult, error) {
	result, err := p.send0(msg, p.cfg.MaxAttemptTimes).Await(timeout)
	if err != nil {
		var ce *client.Error
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, client.NewError(client.KindUnknown, "send failed", err)
	}
	return result, nil
}

// SendAsync publishes a message and delivers the outcome to the callback
// on the producer's callback executor, bounded by the configured send
// timeout.
func (p *Producer) SendAsync(msg *message.Message, callback SendCallback) {
	p.SendAsyncWithTimeout(msg, callback, p.cfg.SendMessageTimeout)
}

// SendAsyncWithTimeout is SendAsync with an explicit deadline for this send.
func (p *Producer) SendAsyncWithTimeout(msg *message.Message, callback SendCallback, timeout time.Duration) {
	future := p.send0(msg, p.cfg.MaxAttemptTimes)
	timer := time.AfterFunc(timeout, func() {
		future.fail(client.NewError(client.KindTimeout, "send timed out", nil))
	})
	go func() {
		<-future.Done()
		timer.Stop()
		result, err := future.Get()
		p.submitCallback(func() {
			if err != nil {
				callback.OnError(err)
				return
			}
			callback.OnSuccess(result)
		})
	}()
}

// submitCallback hands a callback to the executor, or to a plain goroutine
// when the producer was never started and no executor exists.
func (p *Producer) submitCallback(task func()) {
	if p.callbacks != nil {
		p.callbacks.submit(task)
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.log.Errorw("panic in send callback", "panic", r)
			}
		}()
		task()
	}()
}

// SendOneway publishes a message with a single attempt and does not wait
// for, or report, the outcome.
func (p *Producer) SendOneway(msg *message.Message) {
	p.send0(msg, 1)
}

// SendTransaction is not implemented: the broker-side check-back protocol
// for local transactions is not part of this client yet.
func (p *Producer) SendTransaction(msg *message.Message) (*SendResult, error) {
	return nil, client.NewError(client.KindUnsupported, "transactional send is not supported", nil)
}

// EndTransaction commits or rolls back a prepared transactional message on
// the broker that holds it.
func (p *Producer) EndTransaction(ctx context.Context, target route.Endpoints,
	messageID, transactionID, traceContext string, resolution TransactionResolution) error {
	if !p.isRunning() {
		return client.ErrProducerNotStarted
	}
	metadata, err := client.Sign(&p.cfg, time.Now())
	if err != nil {
		return err
	}

	wireResolution := protocol.TransactionCommit
	if resolution == TransactionRollback {
		wireResolution = protocol.TransactionRollback
	}
	req := &protocol.EndTransactionRequest{
		MessageID:     messageID,
		TransactionID: transactionID,
		TraceContext:  traceContext,
		Resolution:    wireResolution,
	}

	var span trace.Span
	if p.tracer != nil && p.cfg.MessageTracingEnabled {
		span = tracing.StartChildSpan(p.tracer, tracing.SpanEndTransaction, traceContext,
			tracing.AttrMessageID.String(messageID),
			tracing.AttrTransactionID.String(transactionID),
		)
	}

	resp, err := p.instance.EndTransaction(ctx, target, metadata, req)
	if err == nil && resp.Common.Status.Code != protocol.CodeOK {
		err = client.NewError(client.KindBrokerRejected,
			fmt.Sprintf("end transaction rejected: code=%d message=%s",
				resp.Common.Status.Code, resp.Common.Status.Message), nil)
	}
	tracing.EndSpan(span, err)
	if err != nil {
		p.log.Errorw("failed to end transaction",
			"messageId", messageID, "transactionId", transactionID, "error", err)
		return err
	}
	p.log.Debugw("transaction ended",
		"messageId", messageID, "transactionId", transactionID, "resolution", resolution)
	return nil
}

// Heartbeat announces this producer group to the given broker.
func (p *Producer) Heartbeat(ctx context.Context, target route.Endpoints) error {
	if !p.isRunning() {
		return client.ErrProducerNotStarted
	}
	entry := protocol.HeartbeatEntry{
		ClientID:      p.instance.ClientID(),
		ProducerGroup: protocol.Resource{Arn: p.cfg.Arn, Name: p.group},
	}
	return p.instance.Heartbeat(ctx, target, entry)
}
