package netsim

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/order"
)

// ReliableStats is a point-in-time snapshot of a Reliable policy's
// counters. Counters only grow; they are never reset.
type ReliableStats struct {
	Attempts        uint64
	Dropped         uint64
	Retransmissions uint64
	Failed          uint64 // batches lost after exhausting retries
	Delivered       uint64
	BaseDelay       time.Duration
	DropRate        float64
}

// Reliable models a retry-on-loss channel in the manner of TCP. Every
// attempt sleeps a jittered base delay plus a congestion penalty
// proportional to the number of concurrently in-flight sends above a
// threshold, then draws a loss decision. Lost attempts are retried with
// a growing backoff, up to MaxRetries extra attempts.
type Reliable struct {
	logger *zap.Logger
	cfg    Config
	rng    *lockedRand

	inflight        atomic.Int32
	attempts        atomic.Uint64
	dropped         atomic.Uint64
	retransmissions atomic.Uint64
	failed          atomic.Uint64
	delivered       atomic.Uint64
}

// NewReliable creates a Reliable policy from cfg. Callers own the
// returned handle; see ForName.
func NewReliable(cfg Config, logger *zap.Logger) *Reliable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reliable{
		logger: logger.Named("netsim.reliable"),
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
	}
}

func (r *Reliable) Name() string { return NameReliable }

// Send delivers the batch, retrying lost attempts. Returns false only
// after MaxRetries+1 attempts have all been lost.
func (r *Reliable) Send(batch []order.Order, batchLatency time.Duration) bool {
	inflight := r.inflight.Add(1)
	defer r.inflight.Add(-1)

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		r.attempts.Add(1)
		r.sleepAttempt(attempt, inflight)
		if r.rng.Float64() >= r.cfg.DropRate {
			r.delivered.Add(1)
			return true
		}
		r.dropped.Add(1)
		if attempt < r.cfg.MaxRetries {
			r.retransmissions.Add(1)
		}
	}
	r.failed.Add(1)
	r.logger.Debug("batch lost after exhausting retries",
		zap.Int("orders", len(batch)),
		zap.Int("retries", r.cfg.MaxRetries),
		zap.Duration("batch_latency", batchLatency))
	return false
}

// sleepAttempt models the per-attempt wire delay: jittered base delay,
// backoff growing with the attempt number, and a head-of-line
// congestion penalty for each in-flight send above the threshold.
func (r *Reliable) sleepAttempt(attempt int, inflight int32) {
	if r.cfg.BaseDelay <= 0 && r.cfg.CongestDelay <= 0 {
		return
	}
	delay := time.Duration(float64(r.cfg.BaseDelay) * r.rng.Uniform(0.8, 1.2))
	delay += time.Duration(attempt) * r.cfg.BaseDelay // backoff
	if excess := inflight - int32(r.cfg.CongestThresh); excess > 0 && r.cfg.CongestDelay > 0 {
		delay += time.Duration(excess) * r.cfg.CongestDelay
	}
	if delay > 0 {
		time.Sleep(delay)
	}
}

// Stats returns a snapshot of the cumulative counters.
func (r *Reliable) Stats() ReliableStats {
	return ReliableStats{
		Attempts:        r.attempts.Load(),
		Dropped:         r.dropped.Load(),
		Retransmissions: r.retransmissions.Load(),
		Failed:          r.failed.Load(),
		Delivered:       r.delivered.Load(),
		BaseDelay:       r.cfg.BaseDelay,
		DropRate:        r.cfg.DropRate,
	}
}
