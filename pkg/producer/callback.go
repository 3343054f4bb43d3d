package producer

import (
	"runtime"
	"sync"

	"go.uber.org/zap"
)

const defaultCallbackQueueSize = 1024

// callbackExecutor runs user callbacks on its own worker pool so user code
// never executes on transport goroutines and a slow callback cannot stall
// the send pipeline of other messages.
//
// The pool has one worker per available CPU and a bounded queue. When the
// queue is full, submit blocks the completing goroutine; back-pressure is
// the producer's responsibility, not the user's.
type callbackExecutor struct {
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
	log   *zap.SugaredLogger
}

func newCallbackExecutor(queueSize int, log *zap.SugaredLogger) *callbackExecutor {
	if queueSize <= 0 {
		queueSize = defaultCallbackQueueSize
	}
	e := &callbackExecutor{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
		log:   log,
	}
	workers := runtime.GOMAXPROCS(0)
	e.wg.Add(workers)
	for w := 0; w < workers; w++ {
		go e.worker()
	}
	return e
}

func (e *callbackExecutor) worker() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.tasks:
			e.run(task)
		case <-e.done:
			// Drain what is already queued, then exit.
			for {
				select {
				case task := <-e.tasks:
					e.run(task)
				default:
					return
				}
			}
		}
	}
}

// run executes a callback, swallowing and logging anything it throws so a
// user-code fault cannot poison the pool.
func (e *callbackExecutor) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("panic in send callback", "panic", r)
		}
	}()
	task()
}

// submit enqueues a callback, blocking while the queue is full. Tasks
// submitted after shutdown are dropped and logged.
func (e *callbackExecutor) submit(task func()) {
	select {
	case <-e.done:
		e.log.Warn("callback executor is shut down, dropping callback")
		return
	default:
	}
	select {
	case <-e.done:
		e.log.Warn("callback executor is shut down, dropping callback")
	case e.tasks <- task:
	}
}

// shutdown stops accepting new callbacks and waits for the workers to
// finish what is already queued.
func (e *callbackExecutor) shutdown() {
	e.once.Do(func() {
		close(e.done)
		e.wg.Wait()
	})
}
