// Package batch groups orders popped from a ring into batches flushed
// to a sink under a size/timeout policy.
package batch

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/order"
)

// Sink receives a flushed batch together with the batch latency (wall
// clock from the first Add to the flush). The boolean result is the
// delivery outcome; a failed delivery is not retried here, loss is
// accounted by the sink's own statistics. The batch slice is reused
// after the sink returns; a sink that retains records must copy them.
type Sink func(batch []order.Order, latency time.Duration) bool

// Batcher is a two-state machine: Idle (no pending records) and
// Accumulating (pending records plus the timestamp of the first one).
// It is owned by, and must only be called from, the consumer goroutine
// that drains the ring; it does not schedule itself, the owner calls
// CheckTimeout periodically.
type Batcher struct {
	logger  *zap.Logger
	sink    Sink
	size    int
	timeout time.Duration

	pending []order.Order
	first   time.Time
	started bool
}

// New creates a Batcher. A size below 1, a non-positive timeout or a nil
// sink are fatal configuration errors. A size of 1 degenerates to
// unbatched pass-through.
func New(size int, timeout time.Duration, sink Sink, logger *zap.Logger) (*Batcher, error) {
	if size < 1 {
		return nil, fmt.Errorf("batch: size threshold must be >= 1, got %d", size)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("batch: timeout must be positive, got %s", timeout)
	}
	if sink == nil {
		return nil, fmt.Errorf("batch: sink must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		logger:  logger,
		sink:    sink,
		size:    size,
		timeout: timeout,
		pending: make([]order.Order, 0, size),
	}, nil
}

// Add appends a record to the pending batch, starting the batch clock on
// the Idle->Accumulating transition. Reaching the size threshold flushes
// immediately and returns the Batcher to Idle.
func (b *Batcher) Add(o order.Order) {
	if !b.started {
		b.first = time.Now()
		b.started = true
	}
	b.pending = append(b.pending, o)
	if len(b.pending) >= b.size {
		b.flush()
	}
}

// CheckTimeout flushes the pending batch if the configured timeout has
// elapsed since the first record entered it. Returns true iff a flush
// happened. A no-op while Idle.
func (b *Batcher) CheckTimeout() bool {
	if !b.started || len(b.pending) == 0 {
		return false
	}
	if time.Since(b.first) >= b.timeout {
		b.flush()
		return true
	}
	return false
}

// ForceFlush flushes whatever is pending, used at shutdown so a partial
// batch is not lost. A no-op while Idle.
func (b *Batcher) ForceFlush() {
	if len(b.pending) > 0 {
		b.flush()
	}
}

// Len returns the number of pending records.
func (b *Batcher) Len() int { return len(b.pending) }

// Idle reports whether no records are pending.
func (b *Batcher) Idle() bool { return !b.started }

// flush hands the pending batch to the sink and resets to Idle. The
// batch is cleared whether or not the sink reports success; a failed
// delivery surfaces only through the sink's statistics.
func (b *Batcher) flush() {
	if len(b.pending) == 0 {
		return
	}
	latency := time.Since(b.first)
	if !b.sink(b.pending, latency) {
		b.logger.Debug("batch delivery failed",
			zap.Int("size", len(b.pending)),
			zap.Duration("latency", latency))
	}
	b.pending = b.pending[:0]
	b.started = false
}
