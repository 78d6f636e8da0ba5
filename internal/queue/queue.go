// Package queue provides a bounded queue with a drop-oldest overflow policy.
// When the queue is full the oldest item is discarded to admit the newest,
// so consumers always operate on the freshest data rather than a backlog.
package queue

import "time"

// Queue is a bounded FIFO backed by a buffered channel. Offer never blocks;
// Poll blocks up to a timeout. Polling is safe from any number of consumers;
// Offer requires a single producer (see its doc).
type Queue[T any] struct {
	ch chan T
}

// New creates a queue with the given capacity. Capacity must be positive.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Offer inserts item, discarding the oldest queued item if the queue is
// full. The evicted item is returned so callers owning resources (frame
// mats) can release it; dropped reports whether an eviction happened.
//
// Offer must be called from a single producer goroutine: with concurrent
// producers, another Offer can refill the queue between the eviction and
// the reinsert, silently discarding item without returning it as evicted.
func (q *Queue[T]) Offer(item T) (evicted T, dropped bool) {
	select {
	case q.ch <- item:
		return evicted, false
	default:
	}
	// Full: evict the oldest entry, then retry once. A concurrent consumer
	// may have emptied the queue in between, which is fine.
	select {
	case evicted = <-q.ch:
		dropped = true
	default:
	}
	select {
	case q.ch <- item:
	default:
	}
	return evicted, dropped
}

// Poll waits up to timeout for an item. The second return value reports
// whether an item was received before the timeout elapsed.
func (q *Queue[T]) Poll(timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case item := <-q.ch:
		return item, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// TryPoll returns an item if one is immediately available.
func (q *Queue[T]) TryPoll() (T, bool) {
	select {
	case item := <-q.ch:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}
