package netsim

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/order"
)

// LossyStats is a point-in-time snapshot of a Lossy policy's counters.
type LossyStats struct {
	Sent         uint64
	Dropped      uint64
	TotalDelayNS uint64 // summed slept delay across successful sends
	BaseDelay    time.Duration
	DropRate     float64
}

// AvgDelay returns the mean slept delay per successful send.
func (s LossyStats) AvgDelay() time.Duration {
	succeeded := s.Sent - s.Dropped
	if succeeded == 0 {
		return 0
	}
	return time.Duration(s.TotalDelayNS / succeeded)
}

// Lossy models a fire-and-forget channel in the manner of UDP: a single
// attempt per batch, the loss decision drawn before any delay, no
// retries.
type Lossy struct {
	logger *zap.Logger
	cfg    Config
	rng    *lockedRand

	sent       atomic.Uint64
	dropped    atomic.Uint64
	totalDelay atomic.Uint64
}

// NewLossy creates a Lossy policy from cfg.
func NewLossy(cfg Config, logger *zap.Logger) *Lossy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lossy{
		logger: logger.Named("netsim.lossy"),
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
	}
}

func (l *Lossy) Name() string { return NameLossy }

// Send makes one delivery attempt. On loss the drop counter grows and
// the call returns immediately; on success the jittered delay plus
// additive noise is slept before returning true.
func (l *Lossy) Send(batch []order.Order, batchLatency time.Duration) bool {
	l.sent.Add(1)
	if l.rng.Float64() < l.cfg.DropRate {
		l.dropped.Add(1)
		l.logger.Debug("batch dropped",
			zap.Int("orders", len(batch)),
			zap.Duration("batch_latency", batchLatency))
		return false
	}
	delay := l.cfg.BaseDelay
	if l.cfg.Jitter {
		delay = time.Duration(float64(l.cfg.BaseDelay) * l.rng.Uniform(0.5, 1.5))
	}
	if l.cfg.Noise > 0 {
		delay += time.Duration(l.rng.Uniform(0, float64(l.cfg.Noise)))
	}
	if delay > 0 {
		time.Sleep(delay)
		l.totalDelay.Add(uint64(delay))
	}
	return true
}

// Stats returns a snapshot of the cumulative counters.
func (l *Lossy) Stats() LossyStats {
	return LossyStats{
		Sent:         l.sent.Load(),
		Dropped:      l.dropped.Load(),
		TotalDelayNS: l.totalDelay.Load(),
		BaseDelay:    l.cfg.BaseDelay,
		DropRate:     l.cfg.DropRate,
	}
}
