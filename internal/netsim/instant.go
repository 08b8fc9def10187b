package netsim

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/order"
)

// InstantStats is a point-in-time snapshot of an Instant policy's
// counters.
type InstantStats struct {
	Sent         uint64
	TotalDelayNS uint64
	MinDelayNS   uint64
	MaxDelayNS   uint64
	NoiseRange   time.Duration
	NoiseEnabled bool
}

// AvgDelay returns the mean observed noise delay per send.
func (s InstantStats) AvgDelay() time.Duration {
	if s.Sent == 0 {
		return 0
	}
	return time.Duration(s.TotalDelayNS / s.Sent)
}

// Instant models near-zero-latency local delivery in the manner of a
// shared-memory hop. Every send succeeds; the only effect is an
// optional noise delay, symmetric around zero and clamped to
// non-negative, standing in for scheduling and IPC jitter.
//
// Min/max tracking needs a consistent multi-field update, so this
// policy guards its counters with a mutex instead of atomics. The
// critical section is a handful of integer ops, invisible next to the
// slept noise.
type Instant struct {
	logger *zap.Logger
	cfg    Config
	rng    *lockedRand

	mu         sync.Mutex
	sent       uint64
	totalDelay uint64
	minDelay   uint64
	maxDelay   uint64
}

// NewInstant creates an Instant policy from cfg.
func NewInstant(cfg Config, logger *zap.Logger) *Instant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instant{
		logger: logger.Named("netsim.instant"),
		cfg:    cfg,
		rng:    newLockedRand(cfg.Seed),
	}
}

func (i *Instant) Name() string { return NameInstant }

// Send always succeeds, after sleeping the drawn noise delay when it
// lands positive.
func (i *Instant) Send(batch []order.Order, batchLatency time.Duration) bool {
	var delay time.Duration
	if i.cfg.NoiseEnabled && i.cfg.NoiseRange > 0 {
		rng := float64(i.cfg.NoiseRange)
		noise := time.Duration(i.rng.Uniform(-rng, rng))
		if noise > 0 {
			time.Sleep(noise)
			delay = noise
		}
	}

	i.mu.Lock()
	i.sent++
	i.totalDelay += uint64(delay)
	if d := uint64(delay); i.sent == 1 || d < i.minDelay {
		i.minDelay = d
	}
	if d := uint64(delay); d > i.maxDelay {
		i.maxDelay = d
	}
	i.mu.Unlock()
	return true
}

// Stats returns a snapshot of the cumulative counters.
func (i *Instant) Stats() InstantStats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return InstantStats{
		Sent:         i.sent,
		TotalDelayNS: i.totalDelay,
		MinDelayNS:   i.minDelay,
		MaxDelayNS:   i.maxDelay,
		NoiseRange:   i.cfg.NoiseRange,
		NoiseEnabled: i.cfg.NoiseEnabled,
	}
}
