package producer

import (
	"sync"
	"time"

	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
)

// SendResult is the broker's acknowledgement of a delivered message.
type SendResult struct {
	MessageID     string
	PartitionID   int32
	QueueOffset   int64
	TransactionID string
}

// SendCallback receives the outcome of an asynchronous send. Callbacks run
// on the producer's callback executor, never on transport goroutines, and
// panics inside them are recovered and logged.
type SendCallback interface {
	OnSuccess(result *SendResult)
	OnError(err error)
}

// SendFuture is the pending outcome of one message send. It completes
// exactly once.
type SendFuture struct {
	done   chan struct{}
	once   sync.Once
	result *SendResult
	err    error
}

func newSendFuture() *SendFuture {
	return &SendFuture{done: make(chan struct{})}
}

func failedSendFuture(err error) *SendFuture {
	f := newSendFuture()
	f.fail(err)
	return f
}

func (f *SendFuture) complete(result *SendResult) {
	f.once.Do(func() {
		f.result = result
		close(f.done)
	})
}

func (f *SendFuture) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the send has completed.
func (f *SendFuture) Done() <-chan struct{} {
	return f.done
}

// Get returns the outcome; it must only be called after Done is closed.
func (f *SendFuture) Get() (*SendResult, error) {
	return f.result, f.err
}

// Await blocks until the send completes or the timeout elapses. On timeout
// the future is failed with a Timeout error; the in-flight attempt is not
// cancelled and may still complete, its outcome is discarded.
func (f *SendFuture) Await(timeout time.Duration) (*SendResult, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		f.fail(client.NewError(client.KindTimeout, "send timed out", nil))
		<-f.done
		return f.result, f.err
	}
}
