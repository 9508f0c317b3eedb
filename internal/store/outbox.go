package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// op is one unit of deferred persistence work.
type op struct {
	label    string
	attempts int
	fn       func(ctx context.Context) error
}

// outbox executes best-effort writes on a single worker in FIFO order.
//
// FIFO plus a single worker is what turns local append order into remote
// append order: work is enqueued under the store lock in mutation order, so
// the gateway sees the same sequence. An op that exhausts its attempts is
// logged and dropped; nothing is rolled back.
type outbox struct {
	log     *zap.Logger
	backoff time.Duration

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []op
	active bool
	closed bool
}

func newOutbox(log *zap.Logger, backoff time.Duration) *outbox {
	o := &outbox{log: log, backoff: backoff}
	o.cond = sync.NewCond(&o.mu)
	go o.run()
	return o
}

// enqueue appends work to the queue. Ops enqueued after close are dropped.
func (o *outbox) enqueue(label string, attempts int, fn func(ctx context.Context) error) {
	if attempts < 1 {
		attempts = 1
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.log.Warn("outbox closed, dropping write", zap.String("op", label))
		return
	}
	o.queue = append(o.queue, op{label: label, attempts: attempts, fn: fn})
	o.cond.Broadcast()
}

func (o *outbox) run() {
	ctx := context.Background()
	o.mu.Lock()
	for {
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}
		if len(o.queue) == 0 && o.closed {
			o.cond.Broadcast()
			o.mu.Unlock()
			return
		}
		job := o.queue[0]
		o.queue = o.queue[1:]
		o.active = true
		o.mu.Unlock()

		o.exec(ctx, job)

		o.mu.Lock()
		o.active = false
		o.cond.Broadcast()
	}
}

func (o *outbox) exec(ctx context.Context, job op) {
	var err error
	for attempt := 0; attempt < job.attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(o.backoff)
		}
		if err = job.fn(ctx); err == nil {
			return
		}
	}
	o.log.Warn("dropping unpersisted write",
		zap.String("op", job.label),
		zap.Int("attempts", job.attempts),
		zap.Error(err),
	)
}

// flush blocks until everything queued so far has been executed.
func (o *outbox) flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.queue) > 0 || o.active {
		o.cond.Wait()
	}
}

// close drains the queue and stops the worker.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	for len(o.queue) > 0 || o.active {
		o.cond.Wait()
	}
	o.mu.Unlock()
}
