// Package eventqueue implements the bounded multi-producer,
// single-consumer queues driver threads enqueue events into.
//
// Grounded on the teacher's WorkerPool.taskQueue: a buffered channel
// plus an atomic drop counter, so producers never block the hot path.
package eventqueue

import (
	"sync/atomic"

	"github.com/adred-codev/pubsubbench/internal/event"
)

// Queue is a bounded MPSC channel of events for one event kind.
// Push is non-blocking and allocation-free on the fast path: when the
// channel is full the event is dropped and the drop counter
// increments instead of blocking the producer.
type Queue struct {
	ch      chan event.Event
	dropped int64
	high    int64 // high-water mark of observed depth
}

// New returns a Queue with the given channel capacity.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan event.Event, capacity)}
}

// Push enqueues e without blocking. Returns false if the queue was
// full and e was dropped.
func (q *Queue) Push(e event.Event) bool {
	select {
	case q.ch <- e:
		if depth := int64(len(q.ch)); depth > atomic.LoadInt64(&q.high) {
			atomic.StoreInt64(&q.high, depth)
		}
		return true
	default:
		atomic.AddInt64(&q.dropped, 1)
		return false
	}
}

// DrainAll removes and returns every event currently buffered,
// without blocking for more to arrive. Used by the EventLogger once
// per pass.
func (q *Queue) DrainAll() []event.Event {
	n := len(q.ch)
	if n == 0 {
		return nil
	}
	out := make([]event.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case e := <-q.ch:
			out = append(out, e)
		default:
			return out
		}
	}
	return out
}

// Dropped returns the total number of events dropped because the
// queue was full.
func (q *Queue) Dropped() int64 { return atomic.LoadInt64(&q.dropped) }

// HighWaterMark returns the largest observed queue depth.
func (q *Queue) HighWaterMark() int64 { return atomic.LoadInt64(&q.high) }

// Len returns the current number of buffered events.
func (q *Queue) Len() int { return len(q.ch) }
