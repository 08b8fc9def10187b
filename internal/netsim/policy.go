// Package netsim provides simulated delivery transports for order
// batches. Three policies model reliable (retry-on-loss), lossy
// (fire-and-forget) and near-instant local delivery. No real network
// I/O happens anywhere in this package; delays are slept, losses are
// drawn from a per-policy random source.
package netsim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/order"
)

// Policy is the sink abstraction the batcher flushes into. Send reports
// delivery success after the policy has applied its delay and loss
// model. Implementations must be safe for concurrent Send calls:
// statistics are shared mutable state even when a single consumer
// drives the policy.
type Policy interface {
	Send(batch []order.Order, batchLatency time.Duration) bool
	Name() string
}

// Policy names accepted by ForName.
const (
	NameReliable = "reliable"
	NameLossy    = "lossy"
	NameInstant  = "instant"
)

// Config carries the parameters for every policy variant; each variant
// reads only the fields it understands.
type Config struct {
	DropRate      float64       `json:"drop_rate" yaml:"drop_rate" mapstructure:"drop_rate"`
	BaseDelay     time.Duration `json:"base_delay" yaml:"base_delay" mapstructure:"base_delay"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	Jitter        bool          `json:"jitter" yaml:"jitter" mapstructure:"jitter"`
	Noise         time.Duration `json:"noise" yaml:"noise" mapstructure:"noise"`
	NoiseEnabled  bool          `json:"noise_enabled" yaml:"noise_enabled" mapstructure:"noise_enabled"`
	NoiseRange    time.Duration `json:"noise_range" yaml:"noise_range" mapstructure:"noise_range"`
	CongestThresh int           `json:"congestion_threshold" yaml:"congestion_threshold" mapstructure:"congestion_threshold"`
	CongestDelay  time.Duration `json:"congestion_penalty" yaml:"congestion_penalty" mapstructure:"congestion_penalty"`

	// Seed pins the random source for deterministic tests; zero means
	// time-seeded.
	Seed int64 `json:"seed" yaml:"seed" mapstructure:"seed"`
}

// Validate rejects parameter combinations no policy can run with.
func (c *Config) Validate() error {
	if c.DropRate < 0 || c.DropRate >= 1 {
		return fmt.Errorf("netsim: drop rate must be in [0,1), got %g", c.DropRate)
	}
	if c.BaseDelay < 0 {
		return fmt.Errorf("netsim: base delay must be non-negative, got %s", c.BaseDelay)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("netsim: max retries must be non-negative, got %d", c.MaxRetries)
	}
	return nil
}

// ForName constructs the named policy variant. Each policy is an
// explicit handle owned by its caller; nothing in this package is
// process-global, so independent pipelines can carry independent
// policies in one process.
func ForName(name string, cfg Config, logger *zap.Logger) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch name {
	case NameReliable:
		return NewReliable(cfg, logger), nil
	case NameLossy:
		return NewLossy(cfg, logger), nil
	case NameInstant:
		return NewInstant(cfg, logger), nil
	default:
		return nil, fmt.Errorf("netsim: unknown transport policy %q", name)
	}
}

// lockedRand wraps a rand source for use from concurrent Send calls.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

// Float64 returns a uniform draw in [0,1).
func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	v := l.rng.Float64()
	l.mu.Unlock()
	return v
}

// Uniform returns a uniform draw in [lo,hi).
func (l *lockedRand) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*l.Float64()
}
