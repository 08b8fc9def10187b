package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantpulse/ordflow/internal/netsim"
	"github.com/quantpulse/ordflow/internal/pipeline"
	"github.com/quantpulse/ordflow/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	configPath := os.Getenv("ORDFLOW_CONFIG")
	cfg, err := pipeline.LoadConfig(configPath, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	policy, err := netsim.ForName(cfg.Transport, cfg.Netsim, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to build transport policy", zap.Error(err))
	}

	orch, err := pipeline.New(cfg, policy, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to build orchestrator", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional telemetry collaborator: Prometheus exposition fed from
	// the statistics-export snapshots.
	exporter := newExporter(orch, policy, cfg.TelemetryInterval, zapLogger)
	go exporter.run(ctx)
	if addr := os.Getenv("ORDFLOW_METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			zapLogger.Info("metrics listener starting", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				zapLogger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	if err := orch.Run(ctx); err != nil {
		zapLogger.Fatal("Pipeline run failed", zap.Error(err))
	}

	logTransportStats(zapLogger, policy)
}

// logTransportStats dumps the final per-policy statistics.
func logTransportStats(l *zap.Logger, policy netsim.Policy) {
	switch p := policy.(type) {
	case *netsim.Reliable:
		s := p.Stats()
		l.Info("reliable transport stats",
			zap.Uint64("attempts", s.Attempts),
			zap.Uint64("dropped", s.Dropped),
			zap.Uint64("retransmissions", s.Retransmissions),
			zap.Uint64("failed_batches", s.Failed),
			zap.Uint64("delivered_batches", s.Delivered),
			zap.Duration("base_delay", s.BaseDelay),
			zap.Float64("drop_rate", s.DropRate))
	case *netsim.Lossy:
		s := p.Stats()
		l.Info("lossy transport stats",
			zap.Uint64("sent", s.Sent),
			zap.Uint64("dropped", s.Dropped),
			zap.Duration("avg_delay", s.AvgDelay()),
			zap.Duration("base_delay", s.BaseDelay),
			zap.Float64("drop_rate", s.DropRate))
	case *netsim.Instant:
		s := p.Stats()
		l.Info("instant transport stats",
			zap.Uint64("sent", s.Sent),
			zap.Duration("avg_delay", s.AvgDelay()),
			zap.Uint64("min_delay_ns", s.MinDelayNS),
			zap.Uint64("max_delay_ns", s.MaxDelayNS),
			zap.Bool("noise_enabled", s.NoiseEnabled),
			zap.Duration("noise_range", s.NoiseRange))
	}
}
