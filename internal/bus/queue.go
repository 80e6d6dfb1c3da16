package bus

import (
	"context"
	"sync/atomic"

	"execcore/internal/model"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded, non-blocking queue of broker events. Publishers may run
// on any goroutine; a single consumer drains it through Run.
type Queue struct {
	ch      chan model.Event
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan model.Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e model.Event) (err error) {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	defer func() {
		// lost a race with Close
		if recover() != nil {
			err = ErrQueueClosed
		}
	}()
	select {
	case q.ch <- e:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events. Queued events are still
// delivered by Run.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns how many events were rejected because the queue was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Run consumes events until the context is done or the queue is closed and
// drained.
func (q *Queue) Run(ctx context.Context, handler func(model.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
