package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/quantpulse/ordflow/internal/netsim"
)

func testConfig() Config {
	cfg := Default()
	cfg.Pipelines = 1
	cfg.RingCapacity = 64
	cfg.BatchSize = 8
	cfg.BatchTimeout = 5 * time.Millisecond
	cfg.ProducerInterval = 0
	cfg.ConsumerPoll = 10 * time.Microsecond
	cfg.Runtime = 200 * time.Millisecond
	cfg.Transport = netsim.NameInstant
	cfg.TelemetryInterval = 0
	cfg.Netsim = netsim.Config{Seed: 1}
	return cfg
}

func TestConfigValidation(t *testing.T) {
	base := testConfig()
	assert.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"zero pipelines":         func(c *Config) { c.Pipelines = 0 },
		"non power of two ring":  func(c *Config) { c.RingCapacity = 1000 },
		"ring capacity one":      func(c *Config) { c.RingCapacity = 1 },
		"zero batch size":        func(c *Config) { c.BatchSize = 0 },
		"zero batch timeout":     func(c *Config) { c.BatchTimeout = 0 },
		"negative poll interval": func(c *Config) { c.ConsumerPoll = -time.Millisecond },
		"unknown transport":      func(c *Config) { c.Transport = "smoke-signals" },
		"bad drop rate":          func(c *Config) { c.Netsim.DropRate = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.RingCapacity)
	assert.Equal(t, 10, cfg.BatchSize)
}

func TestSampleYAMLRendersDefaults(t *testing.T) {
	sample := SampleYAML()
	assert.Contains(t, sample, "ring_capacity: 1024")
	assert.Contains(t, sample, "batch_size: 10")
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig("", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, Default().BatchSize, cfg.BatchSize)
	assert.Equal(t, Default().RingCapacity, cfg.RingCapacity)
	assert.Equal(t, Default().Transport, cfg.Transport)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("ORDFLOW_BATCH_SIZE", "32")
	t.Setenv("ORDFLOW_TRANSPORT", "lossy")
	t.Setenv("ORDFLOW_NETSIM_DROP_RATE", "0.1")

	cfg, err := LoadConfig("", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, "lossy", cfg.Transport)
	assert.InDelta(t, 0.1, cfg.Netsim.DropRate, 1e-9)
}

func TestLoadConfigFileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 16\nring_capacity: 64\n"), 0o644))

	t.Setenv("ORDFLOW_BATCH_SIZE", "24")

	cfg, err := LoadConfig(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.BatchSize, "environment beats the file")
	assert.Equal(t, 64, cfg.RingCapacity, "file beats the defaults")
	assert.Equal(t, Default().Pipelines, cfg.Pipelines, "untouched keys keep their defaults")
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	t.Setenv("ORDFLOW_RING_CAPACITY", "1000")
	_, err := LoadConfig("", zaptest.NewLogger(t))
	assert.Error(t, err, "non-power-of-two capacity must fail validation")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.RingCapacity = 3

	policy := netsim.NewInstant(netsim.Config{}, logger)
	_, err := New(cfg, policy, logger)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, logger)
	assert.Error(t, err, "nil policy must be rejected")
}

func TestEndToEndRunDeliversOrders(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	policy := netsim.NewInstant(netsim.Config{Seed: 1}, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)

	require.NoError(t, orch.Run(context.Background()))

	s := orch.Snapshot()
	assert.Greater(t, s.Produced, uint64(0))
	assert.Greater(t, s.Popped, uint64(0))
	assert.Greater(t, s.Batches, uint64(0))
	assert.GreaterOrEqual(t, s.Produced, s.Popped, "cannot pop more than was pushed")
	assert.Equal(t, s.Popped, s.Delivered, "instant transport loses nothing")
	assert.GreaterOrEqual(t, s.TotalLatency, time.Duration(0))

	ts := policy.Stats()
	assert.Equal(t, s.Batches, ts.Sent)
}

func TestRunStopsCooperatively(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Runtime = 0 // run until stopped
	policy := netsim.NewInstant(netsim.Config{Seed: 1}, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- orch.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, orch.Running())
	orch.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop cooperatively")
	}
	assert.False(t, orch.Running())
}

func TestStopImmediatelyAfterRun(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Runtime = 0 // run until stopped
	policy := netsim.NewInstant(netsim.Config{Seed: 1}, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- orch.Run(context.Background()) }()
	// No sleep: Stop may land before Run has wired anything, and Run
	// must still return.
	orch.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunTwiceFails(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Runtime = 0
	policy := netsim.NewInstant(netsim.Config{Seed: 1}, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)

	go orch.Run(context.Background())
	time.Sleep(20 * time.Millisecond)
	defer orch.Stop()

	assert.Error(t, orch.Run(context.Background()))
}

func TestUnbatchedPassThrough(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.EnableBatching = false
	cfg.Runtime = 100 * time.Millisecond
	policy := netsim.NewInstant(netsim.Config{Seed: 1}, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background()))

	s := orch.Snapshot()
	assert.Greater(t, s.Batches, uint64(0))
	assert.Equal(t, s.Batches, s.Delivered, "pass-through sends single-record batches")
}

func TestLossyRunAccountsDrops(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Transport = netsim.NameLossy
	cfg.Netsim = netsim.Config{DropRate: 0.5, Seed: 3}
	policy := netsim.NewLossy(cfg.Netsim, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)
	require.NoError(t, orch.Run(context.Background()))

	s := orch.Snapshot()
	ts := policy.Stats()
	assert.Greater(t, ts.Sent, uint64(0))
	assert.Greater(t, ts.Dropped, uint64(0), "half the batches should drop")
	assert.Less(t, s.Delivered, s.Popped, "dropped batches are lost, not retried")
}

func TestSnapshotSafeWhileRunning(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testConfig()
	cfg.Runtime = 100 * time.Millisecond
	policy := netsim.NewInstant(netsim.Config{Seed: 1}, logger)

	orch, err := New(cfg, policy, logger)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(context.Background())
	}()

	// Snapshots from a foreign goroutine must never block the loops.
	for i := 0; i < 50; i++ {
		s := orch.Snapshot()
		assert.Len(t, s.RingDepths, 1)
		assert.GreaterOrEqual(t, s.RingCapacity, 2)
		time.Sleep(time.Millisecond)
	}
	<-done
}
