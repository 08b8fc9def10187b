// Package pipeline wires rings, batchers and a transport policy into
// running producer/consumer pairs and tracks run-wide statistics.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/batch"
	"github.com/quantpulse/ordflow/internal/netsim"
	"github.com/quantpulse/ordflow/internal/order"
	"github.com/quantpulse/ordflow/internal/spsc"
)

// Snapshot is a point-in-time view of the orchestrator's counters, safe
// to take from any goroutine at any time.
type Snapshot struct {
	Produced     uint64
	PushDropped  uint64 // backpressure: failed TryPush attempts
	Popped       uint64
	Delivered    uint64 // orders in successfully sent batches
	Batches      uint64
	TotalLatency time.Duration // cumulative batch latency over sent batches
	RingDepths   []int
	RingCapacity int
}

// AvgBatchLatency returns the mean batch latency over sent batches.
func (s Snapshot) AvgBatchLatency() time.Duration {
	if s.Batches == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Batches)
}

// pipe is one single-producer/single-consumer pair. The ring is owned
// by the pipe for its whole lifetime; the batcher is touched only by
// the consumer goroutine.
type pipe struct {
	id      int
	ring    *spsc.Ring[order.Order]
	batcher *batch.Batcher
	gen     *order.Generator
}

// Orchestrator drives N independent pipelines against one shared
// transport policy. Construction wires everything; Run drives the
// goroutines until the context ends or Stop is called.
type Orchestrator struct {
	logger *zap.Logger
	cfg    Config
	policy netsim.Policy
	runID  uuid.UUID

	pipes    []*pipe
	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	produced     atomic.Uint64
	pushDropped  atomic.Uint64
	popped       atomic.Uint64
	delivered    atomic.Uint64
	batches      atomic.Uint64
	totalLatency atomic.Uint64 // ns
}

// New validates cfg and builds the orchestrator around the given
// transport policy. The policy handle is passed in explicitly so tests
// and multi-pipeline processes never touch shared globals.
func New(cfg Config, policy netsim.Policy, logger *zap.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, fmt.Errorf("pipeline: transport policy must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		logger: logger.Named("pipeline"),
		cfg:    cfg,
		policy: policy,
		runID:  uuid.New(),
		stop:   make(chan struct{}),
	}

	for i := 0; i < cfg.Pipelines; i++ {
		ring, err := spsc.New[order.Order](cfg.RingCapacity)
		if err != nil {
			return nil, err
		}
		b, err := batch.New(cfg.BatchSize, cfg.BatchTimeout, o.sink, logger)
		if err != nil {
			return nil, err
		}
		// Disjoint ID ranges per producer; seed varies per pipe so the
		// synthetic flows differ.
		o.pipes = append(o.pipes, &pipe{
			id:      i,
			ring:    ring,
			batcher: b,
			gen:     order.NewGenerator(uint64(i)*1_000_000, time.Now().UnixNano()+int64(i), cfg.Symbols),
		})
	}
	return o, nil
}

// sink forwards a flushed batch to the transport and accounts the
// outcome. It is the sole integration point between batching and the
// network simulation layer.
func (o *Orchestrator) sink(orders []order.Order, latency time.Duration) bool {
	ok := o.policy.Send(orders, latency)
	if ok {
		o.batches.Add(1)
		o.delivered.Add(uint64(len(orders)))
		o.totalLatency.Add(uint64(latency))
	}
	return ok
}

// Run starts every producer and consumer pair plus the telemetry loop
// and blocks until the context is done, Stop is called, or the
// configured runtime elapses. It always drains with a final flush and
// logs the closing report.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline: orchestrator already running")
	}

	var cancel context.CancelFunc
	if o.cfg.Runtime > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Runtime)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	o.logger.Info("starting pipelines",
		zap.String("run_id", o.runID.String()),
		zap.Int("pipelines", o.cfg.Pipelines),
		zap.Int("ring_capacity", o.cfg.RingCapacity),
		zap.Int("batch_size", o.cfg.BatchSize),
		zap.Duration("batch_timeout", o.cfg.BatchTimeout),
		zap.String("transport", o.policy.Name()),
		zap.Bool("batching", o.cfg.EnableBatching))

	for _, p := range o.pipes {
		o.wg.Add(2)
		go o.produce(ctx, p)
		go o.consume(ctx, p)
	}
	if o.cfg.TelemetryInterval > 0 {
		o.wg.Add(1)
		go o.telemetry(ctx)
	}

	// The stop channel is created in New so Stop never touches state
	// that Run writes; a Stop issued before this select is reached is
	// still observed.
	select {
	case <-ctx.Done():
	case <-o.stop:
	}
	o.running.Store(false)
	cancel()
	o.wg.Wait()
	o.report()
	return nil
}

// Stop requests a cooperative shutdown; loops observe the flag at the
// top of their next iteration and Run returns once they drain. Safe to
// call from any goroutine, any number of times, at any point in the
// orchestrator's life.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
	o.stopOnce.Do(func() { close(o.stop) })
}

// Running reports whether the orchestrator loops are live.
func (o *Orchestrator) Running() bool { return o.running.Load() }

// produce generates synthetic orders and pushes them into the pipe's
// ring. A full ring is expected backpressure: the attempt is dropped
// and counted, never retried.
func (o *Orchestrator) produce(ctx context.Context, p *pipe) {
	defer o.wg.Done()
	for o.running.Load() && ctx.Err() == nil {
		ord := p.gen.Next()
		if p.ring.TryPush(ord) {
			o.produced.Add(1)
		} else {
			o.pushDropped.Add(1)
		}
		if o.cfg.ProducerInterval > 0 {
			time.Sleep(o.cfg.ProducerInterval)
		}
	}
}

// consume drains the pipe's ring into its batcher, checking the batch
// timeout each pass. On exit it force-flushes so a partial batch is not
// lost; the flush happens here because the batcher is owned by this
// goroutine.
func (o *Orchestrator) consume(ctx context.Context, p *pipe) {
	defer o.wg.Done()
	defer p.batcher.ForceFlush()
	for o.running.Load() && ctx.Err() == nil {
		if ord, ok := p.ring.TryPop(); ok {
			o.popped.Add(1)
			if o.cfg.EnableBatching {
				p.batcher.Add(ord)
				p.batcher.CheckTimeout()
				continue
			}
			o.sink([]order.Order{ord}, 0)
			continue
		}
		p.batcher.CheckTimeout()
		if o.cfg.ConsumerPoll > 0 {
			time.Sleep(o.cfg.ConsumerPoll)
		}
	}
}

// Snapshot returns the current counters without disturbing the loops.
func (o *Orchestrator) Snapshot() Snapshot {
	s := Snapshot{
		Produced:     o.produced.Load(),
		PushDropped:  o.pushDropped.Load(),
		Popped:       o.popped.Load(),
		Delivered:    o.delivered.Load(),
		Batches:      o.batches.Load(),
		TotalLatency: time.Duration(o.totalLatency.Load()),
		RingCapacity: o.cfg.RingCapacity,
	}
	for _, p := range o.pipes {
		s.RingDepths = append(s.RingDepths, p.ring.Len())
	}
	return s
}

// telemetry logs the live counters once per interval.
func (o *Orchestrator) telemetry(ctx context.Context) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.TelemetryInterval)
	defer ticker.Stop()

	var lastDelivered uint64
	lastAt := time.Now()
	for o.running.Load() && ctx.Err() == nil {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s := o.Snapshot()
			elapsed := now.Sub(lastAt).Seconds()
			var rate float64
			if elapsed > 0 {
				rate = float64(s.Delivered-lastDelivered) / elapsed
			}
			lastDelivered = s.Delivered
			lastAt = now

			o.logger.Info("pipeline stats",
				zap.Uint64("produced", s.Produced),
				zap.Uint64("push_dropped", s.PushDropped),
				zap.Uint64("popped", s.Popped),
				zap.Uint64("delivered", s.Delivered),
				zap.Uint64("batches", s.Batches),
				zap.Float64("throughput_ops", rate),
				zap.Duration("avg_batch_latency", s.AvgBatchLatency()),
				zap.Ints("ring_depths", s.RingDepths))
		}
	}
}

// report logs the cumulative counters at shutdown.
func (o *Orchestrator) report() {
	s := o.Snapshot()
	o.logger.Info("run complete",
		zap.String("run_id", o.runID.String()),
		zap.Uint64("produced", s.Produced),
		zap.Uint64("push_dropped", s.PushDropped),
		zap.Uint64("popped", s.Popped),
		zap.Uint64("delivered", s.Delivered),
		zap.Uint64("batches", s.Batches),
		zap.Duration("avg_batch_latency", s.AvgBatchLatency()))
}
