package netsim

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantpulse/ordflow/internal/order"
)

func testBatch(n int) []order.Order {
	batch := make([]order.Order, n)
	for i := range batch {
		batch[i] = order.New(uint64(i+1), "AAPL", order.SideBuy, 10000, 1)
	}
	return batch
}

func TestForName(t *testing.T) {
	logger := zaptest.NewLogger(t)

	for name, want := range map[string]string{
		NameReliable: NameReliable,
		NameLossy:    NameLossy,
		NameInstant:  NameInstant,
	} {
		p, err := ForName(name, Config{}, logger)
		require.NoError(t, err)
		assert.Equal(t, want, p.Name())
	}

	_, err := ForName("carrier-pigeon", Config{}, logger)
	assert.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	assert.Error(t, (&Config{DropRate: -0.1}).Validate())
	assert.Error(t, (&Config{DropRate: 1.0}).Validate())
	assert.Error(t, (&Config{BaseDelay: -time.Second}).Validate())
	assert.Error(t, (&Config{MaxRetries: -1}).Validate())
	assert.NoError(t, (&Config{DropRate: 0.5, MaxRetries: 3}).Validate())
}

func TestReliableAlwaysSucceedsWithoutLoss(t *testing.T) {
	p := NewReliable(Config{DropRate: 0, MaxRetries: 3, Seed: 1}, zaptest.NewLogger(t))
	batch := testBatch(3)

	for i := 0; i < 100; i++ {
		assert.True(t, p.Send(batch, time.Millisecond))
	}
	s := p.Stats()
	assert.Equal(t, uint64(100), s.Attempts)
	assert.Equal(t, uint64(100), s.Delivered)
	assert.Zero(t, s.Dropped)
	assert.Zero(t, s.Retransmissions)
	assert.Zero(t, s.Failed)
}

func TestReliableRetriesThenFails(t *testing.T) {
	// Certain loss: every attempt drops, every send exhausts retries.
	p := NewReliable(Config{DropRate: 0.999999999, MaxRetries: 3, Seed: 1}, zaptest.NewLogger(t))
	batch := testBatch(1)

	for i := 0; i < 10; i++ {
		assert.False(t, p.Send(batch, 0))
	}
	s := p.Stats()
	assert.Equal(t, uint64(40), s.Attempts, "MaxRetries+1 attempts per send")
	assert.Equal(t, uint64(40), s.Dropped)
	assert.Equal(t, uint64(30), s.Retransmissions, "final attempt of a send is not a retransmission")
	assert.Equal(t, uint64(10), s.Failed)
}

func TestReliableCountersMonotone(t *testing.T) {
	p := NewReliable(Config{DropRate: 0.3, MaxRetries: 2, Seed: 7}, zaptest.NewLogger(t))
	batch := testBatch(1)

	var prev ReliableStats
	for i := 0; i < 1000; i++ {
		p.Send(batch, 0)
		s := p.Stats()
		assert.GreaterOrEqual(t, s.Attempts, prev.Attempts)
		assert.GreaterOrEqual(t, s.Dropped, prev.Dropped)
		assert.GreaterOrEqual(t, s.Retransmissions, prev.Retransmissions)
		prev = s
	}
}

func TestReliableEmpiricalDropRateConverges(t *testing.T) {
	const (
		trials   = 100000
		dropRate = 0.02
	)
	// No retries and no delays so each send is a single Bernoulli draw.
	p := NewReliable(Config{DropRate: dropRate, MaxRetries: 0, Seed: 99}, zaptest.NewLogger(t))
	batch := testBatch(1)

	for i := 0; i < trials; i++ {
		p.Send(batch, 0)
	}
	s := p.Stats()
	observed := float64(s.Dropped) / float64(s.Attempts)
	assert.InDelta(t, dropRate, observed, 0.01,
		"empirical drop fraction %.4f should converge to configured %.2f", observed, dropRate)
}

func TestReliableConcurrentSends(t *testing.T) {
	p := NewReliable(Config{DropRate: 0.1, MaxRetries: 1, Seed: 3}, zaptest.NewLogger(t))
	batch := testBatch(2)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				p.Send(batch, 0)
			}
		}()
	}
	wg.Wait()

	s := p.Stats()
	assert.GreaterOrEqual(t, s.Attempts, uint64(4000))
	assert.Equal(t, s.Delivered+s.Failed, uint64(4000), "every send either delivers or fails")
}

func TestReliableCongestionDelayScalesWithInflight(t *testing.T) {
	p := NewReliable(Config{CongestThresh: 1, CongestDelay: 10 * time.Millisecond, Seed: 1}, zaptest.NewLogger(t))

	// At the threshold no penalty applies.
	start := time.Now()
	p.sleepAttempt(0, 1)
	assert.Less(t, time.Since(start), 8*time.Millisecond)

	// Three in-flight sends above the threshold cost three penalty units.
	start = time.Now()
	p.sleepAttempt(0, 4)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestReliableCongestionPenaltyUnderConcurrency(t *testing.T) {
	// Threshold zero: every send sees itself in flight above it.
	p := NewReliable(Config{DropRate: 0, MaxRetries: 0, CongestThresh: 0, CongestDelay: 5 * time.Millisecond, Seed: 2}, zaptest.NewLogger(t))
	batch := testBatch(1)

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, p.Send(batch, 0))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond,
		"the burst must absorb at least one penalty unit")
	assert.Equal(t, uint64(4), p.Stats().Delivered)
}

func TestLossySingleAttempt(t *testing.T) {
	p := NewLossy(Config{DropRate: 0.999999999, Seed: 5}, zaptest.NewLogger(t))
	batch := testBatch(1)

	for i := 0; i < 20; i++ {
		assert.False(t, p.Send(batch, 0), "lossy never retries")
	}
	s := p.Stats()
	assert.Equal(t, uint64(20), s.Sent)
	assert.Equal(t, uint64(20), s.Dropped)
}

func TestLossyDeliversWithoutLoss(t *testing.T) {
	p := NewLossy(Config{DropRate: 0, Seed: 5}, zaptest.NewLogger(t))
	batch := testBatch(4)

	for i := 0; i < 50; i++ {
		assert.True(t, p.Send(batch, 0))
	}
	s := p.Stats()
	assert.Equal(t, uint64(50), s.Sent)
	assert.Zero(t, s.Dropped)
	assert.Zero(t, s.AvgDelay(), "no base delay configured")
}

func TestLossyEmpiricalDropRate(t *testing.T) {
	const trials = 100000
	p := NewLossy(Config{DropRate: 0.02, Seed: 11}, zaptest.NewLogger(t))
	batch := testBatch(1)

	for i := 0; i < trials; i++ {
		p.Send(batch, 0)
	}
	s := p.Stats()
	observed := float64(s.Dropped) / float64(s.Sent)
	assert.InDelta(t, 0.02, observed, 0.01)
}

func TestInstantAlwaysSucceeds(t *testing.T) {
	p := NewInstant(Config{NoiseEnabled: true, NoiseRange: 100 * time.Nanosecond, Seed: 13}, zaptest.NewLogger(t))
	batch := testBatch(2)

	for i := 0; i < 1000; i++ {
		assert.True(t, p.Send(batch, 0))
	}
	s := p.Stats()
	assert.Equal(t, uint64(1000), s.Sent)
	assert.LessOrEqual(t, s.MinDelayNS, s.MaxDelayNS)
	assert.LessOrEqual(t, s.MaxDelayNS, uint64(100), "noise is clamped to the configured range")
}

func TestInstantNoiseDisabled(t *testing.T) {
	p := NewInstant(Config{NoiseEnabled: false, NoiseRange: time.Hour, Seed: 13}, zaptest.NewLogger(t))
	start := time.Now()
	assert.True(t, p.Send(testBatch(1), 0))
	assert.Less(t, time.Since(start), time.Second, "disabled noise must not sleep")

	s := p.Stats()
	assert.Equal(t, uint64(1), s.Sent)
	assert.Zero(t, s.MaxDelayNS)
}

func TestDeterministicWithSeed(t *testing.T) {
	run := func() (uint64, uint64) {
		p := NewLossy(Config{DropRate: 0.5, Seed: 42}, zaptest.NewLogger(t))
		for i := 0; i < 1000; i++ {
			p.Send(testBatch(1), 0)
		}
		s := p.Stats()
		return s.Sent, s.Dropped
	}
	sent1, dropped1 := run()
	sent2, dropped2 := run()
	assert.Equal(t, sent1, sent2)
	assert.Equal(t, dropped1, dropped2)
	assert.False(t, math.IsNaN(float64(dropped1)))
}
