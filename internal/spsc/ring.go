// Package spsc implements a lock-free single-producer/single-consumer
// ring buffer for the order pipeline hot path.
//
// Two independent atomic cursors plus acquire/release pairing is the
// minimum synchronization needed for the SPSC case: the structure is
// wait-free and allocation-free after construction. It is NOT safe for
// more than one producer or more than one consumer at a time; fan-in and
// fan-out require separate rings.
package spsc

import (
	"fmt"
	"sync/atomic"
	"time"
)

// waitGranularity is the sleep slice used by the bounded-wait variants.
// Busy-wait polling with a short sleep is a deliberate trade-off against
// kernel wait primitives on the latency-critical path.
const waitGranularity = 50 * time.Microsecond

// Ring is a fixed-capacity SPSC ring buffer. One slot is always kept
// empty so that full and empty are distinguishable from the two cursors
// alone; at most capacity-1 elements are live at once.
type Ring[T any] struct {
	buf  []T
	mask uint64

	// The cursors live on separate cache lines so the producer and the
	// consumer never invalidate each other's line on cursor publication.
	_     [8]uint64
	write atomic.Uint64 // advanced only by the producer
	_     [7]uint64
	read  atomic.Uint64 // advanced only by the consumer
	_     [7]uint64
}

// New creates a ring with the given capacity. Capacity must be a power
// of two and at least 2; anything else is a fatal configuration error.
func New[T any](capacity int) (*Ring[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("spsc: capacity must be a power of two >= 2, got %d", capacity)
	}
	return &Ring[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity) - 1,
	}, nil
}

// TryPush attempts to enqueue v. It fails, with no side effect, iff the
// ring is full. The item is stored before the advanced write cursor is
// published, so a consumer that observes the new cursor also observes
// the item. Never blocks.
func (r *Ring[T]) TryPush(v T) bool {
	w := r.write.Load()
	next := (w + 1) & r.mask
	if next == r.read.Load() {
		return false // full
	}
	r.buf[w&r.mask] = v
	r.write.Store(next)
	return true
}

// TryPop attempts to dequeue the oldest element. It fails iff the ring
// is empty. The write cursor is loaded before the slot read, and the
// advanced read cursor is published only after the copy. Never blocks.
func (r *Ring[T]) TryPop() (T, bool) {
	var zero T
	t := r.read.Load()
	if t == r.write.Load() {
		return zero, false // empty
	}
	v := r.buf[t&r.mask]
	r.buf[t&r.mask] = zero // drop the slot's reference, if any
	r.read.Store((t + 1) & r.mask)
	return v, true
}

// PushWait repeatedly attempts TryPush, sleeping briefly between
// attempts, until success or the deadline passes. Returns false on
// deadline expiry. This is busy-wait polling, not true blocking.
func (r *Ring[T]) PushWait(v T, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if r.TryPush(v) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(waitGranularity)
	}
}

// PopWait repeatedly attempts TryPop until success or the deadline
// passes.
func (r *Ring[T]) PopWait(timeout time.Duration) (T, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if v, ok := r.TryPop(); ok {
			return v, true
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, false
		}
		time.Sleep(waitGranularity)
	}
}

// Empty reports whether the ring held no elements at the observation
// instant.
func (r *Ring[T]) Empty() bool {
	return r.write.Load() == r.read.Load()
}

// Full reports whether a push at the observation instant would fail.
func (r *Ring[T]) Full() bool {
	return (r.write.Load()+1)&r.mask == r.read.Load()
}

// Len returns an approximate element count. The value is exact only
// when no concurrent push or pop races with the two loads; it is meant
// for diagnostics, never for control flow.
func (r *Ring[T]) Len() int {
	w := r.write.Load()
	t := r.read.Load()
	return int((w - t) & r.mask)
}

// Cap returns the configured capacity. The usable element count is
// Cap()-1.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Clear resets both cursors to zero. It is unsafe to call while a
// producer or consumer may be operating concurrently; callers must
// quiesce both sides first.
func (r *Ring[T]) Clear() {
	r.write.Store(0)
	r.read.Store(0)
}
