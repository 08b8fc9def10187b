package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersProduced counts orders accepted into a ring by producers.
var OrdersProduced = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ordflow_orders_produced_total",
		Help: "Total number of orders pushed into the pipeline",
	},
)

// OrdersDelivered counts orders carried by successfully sent batches.
var OrdersDelivered = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ordflow_orders_delivered_total",
		Help: "Total number of orders delivered by the transport",
	},
)

// PushesDropped counts failed non-blocking pushes (backpressure).
var PushesDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ordflow_pushes_dropped_total",
		Help: "Total number of push attempts rejected by a full ring",
	},
)

// BatchesSent counts successfully delivered batches.
var BatchesSent = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "ordflow_batches_sent_total",
		Help: "Total number of batches delivered by the transport",
	},
)

// BatchLatency records the distribution of batch latencies (first add
// to flush).
var BatchLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "ordflow_batch_latency_seconds",
		Help:    "Latency in seconds from the first record of a batch to its flush",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
	},
)

// RingUtilization tracks per-ring fill as a fraction of capacity.
var RingUtilization = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ordflow_ring_utilization_ratio",
		Help: "Ring buffer fill level as a fraction of capacity",
	},
	[]string{"pipeline"},
)

// Transport simulation counters, labelled by policy name.
var (
	TransportDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordflow_transport_dropped_total",
			Help: "Total simulated packet drops by transport policy",
		},
		[]string{"transport"},
	)

	TransportRetransmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordflow_transport_retransmissions_total",
			Help: "Total simulated retransmissions by transport policy",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(OrdersProduced, OrdersDelivered, PushesDropped, BatchesSent, BatchLatency)
	prometheus.MustRegister(RingUtilization, TransportDrops, TransportRetransmissions)
}
