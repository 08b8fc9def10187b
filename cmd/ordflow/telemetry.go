package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/netsim"
	"github.com/quantpulse/ordflow/internal/pipeline"
	"github.com/quantpulse/ordflow/pkg/metrics"
)

// exporter polls the statistics-export snapshots and feeds the
// Prometheus collectors. Counters take deltas between polls so the
// exported series stay monotone alongside the snapshot counters.
type exporter struct {
	orch     *pipeline.Orchestrator
	policy   netsim.Policy
	interval time.Duration
	logger   *zap.Logger

	last        pipeline.Snapshot
	lastDrops   uint64
	lastRetrans uint64
}

func newExporter(orch *pipeline.Orchestrator, policy netsim.Policy, interval time.Duration, logger *zap.Logger) *exporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &exporter{
		orch:     orch,
		policy:   policy,
		interval: interval,
		logger:   logger.Named("telemetry"),
	}
}

func (e *exporter) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.collect()
			return
		case <-ticker.C:
			e.collect()
		}
	}
}

func (e *exporter) collect() {
	s := e.orch.Snapshot()

	metrics.OrdersProduced.Add(float64(s.Produced - e.last.Produced))
	metrics.OrdersDelivered.Add(float64(s.Delivered - e.last.Delivered))
	metrics.PushesDropped.Add(float64(s.PushDropped - e.last.PushDropped))
	metrics.BatchesSent.Add(float64(s.Batches - e.last.Batches))

	// The histogram cannot replay individual flushes, so it observes the
	// mean latency once per newly sent batch since the last poll.
	if newBatches := s.Batches - e.last.Batches; newBatches > 0 {
		mean := (s.TotalLatency - e.last.TotalLatency) / time.Duration(newBatches)
		for i := uint64(0); i < newBatches; i++ {
			metrics.BatchLatency.Observe(mean.Seconds())
		}
	}

	for i, depth := range s.RingDepths {
		metrics.RingUtilization.WithLabelValues(fmt.Sprint(i)).
			Set(float64(depth) / float64(s.RingCapacity))
	}

	drops, retrans := transportCounters(e.policy)
	metrics.TransportDrops.WithLabelValues(e.policy.Name()).Add(float64(drops - e.lastDrops))
	metrics.TransportRetransmissions.WithLabelValues(e.policy.Name()).Add(float64(retrans - e.lastRetrans))

	e.last = s
	e.lastDrops = drops
	e.lastRetrans = retrans
}

func transportCounters(policy netsim.Policy) (drops, retransmissions uint64) {
	switch p := policy.(type) {
	case *netsim.Reliable:
		s := p.Stats()
		return s.Dropped, s.Retransmissions
	case *netsim.Lossy:
		s := p.Stats()
		return s.Dropped, 0
	default:
		return 0, 0
	}
}
