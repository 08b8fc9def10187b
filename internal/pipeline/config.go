// Configuration types and loading for the order pipeline.
package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/quantpulse/ordflow/internal/netsim"
)

// Config describes one orchestrator run. Every pipeline is an
// independent single-producer/single-consumer pair over its own ring;
// all pipelines share one transport policy.
type Config struct {
	// Pipelines is the number of independent producer/consumer pairs.
	Pipelines int `json:"pipelines" yaml:"pipelines" mapstructure:"pipelines"`

	// RingCapacity is the per-pipeline ring size; must be a power of two.
	RingCapacity int `json:"ring_capacity" yaml:"ring_capacity" mapstructure:"ring_capacity"`

	BatchSize    int           `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout" mapstructure:"batch_timeout"`

	// EnableBatching off means the consumer forwards single-record
	// batches straight to the transport.
	EnableBatching bool `json:"enable_batching" yaml:"enable_batching" mapstructure:"enable_batching"`

	// ProducerInterval is the pause between produced orders;
	// ConsumerPoll is the consumer loop's idle sleep. Both are busy-wait
	// granularities, kept sub-millisecond on purpose.
	ProducerInterval time.Duration `json:"producer_interval" yaml:"producer_interval" mapstructure:"producer_interval"`
	ConsumerPoll     time.Duration `json:"consumer_poll" yaml:"consumer_poll" mapstructure:"consumer_poll"`

	// Runtime bounds the run; zero means run until stopped.
	Runtime time.Duration `json:"runtime" yaml:"runtime" mapstructure:"runtime"`

	Symbols []string `json:"symbols" yaml:"symbols" mapstructure:"symbols"`

	// Transport selects the delivery policy: reliable, lossy or instant.
	Transport string        `json:"transport" yaml:"transport" mapstructure:"transport"`
	Netsim    netsim.Config `json:"netsim" yaml:"netsim" mapstructure:"netsim"`

	// TelemetryInterval is the cadence of the runtime stats log; zero
	// disables the telemetry loop.
	TelemetryInterval time.Duration `json:"telemetry_interval" yaml:"telemetry_interval" mapstructure:"telemetry_interval"`
}

// Default returns the configuration the original deployment ran with.
func Default() Config {
	return Config{
		Pipelines:         2,
		RingCapacity:      1024,
		BatchSize:         10,
		BatchTimeout:      time.Millisecond,
		EnableBatching:    true,
		ProducerInterval:  100 * time.Microsecond,
		ConsumerPoll:      10 * time.Microsecond,
		Runtime:           60 * time.Second,
		Transport:         netsim.NameReliable,
		TelemetryInterval: time.Second,
		Netsim: netsim.Config{
			DropRate:      0.02,
			BaseDelay:     5 * time.Millisecond,
			MaxRetries:    3,
			Jitter:        true,
			NoiseEnabled:  true,
			NoiseRange:    100 * time.Nanosecond,
			CongestThresh: 4,
			CongestDelay:  500 * time.Microsecond,
		},
	}
}

// Validate rejects fatal misconfigurations. Constructors downstream
// re-check their own invariants; this is the single front door for a
// whole run.
func (c *Config) Validate() error {
	if c.Pipelines < 1 {
		return fmt.Errorf("pipeline: pipelines must be >= 1, got %d", c.Pipelines)
	}
	if c.RingCapacity < 2 || c.RingCapacity&(c.RingCapacity-1) != 0 {
		return fmt.Errorf("pipeline: ring capacity must be a power of two >= 2, got %d", c.RingCapacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("pipeline: batch size must be >= 1, got %d", c.BatchSize)
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("pipeline: batch timeout must be positive, got %s", c.BatchTimeout)
	}
	if c.ProducerInterval < 0 || c.ConsumerPoll < 0 {
		return fmt.Errorf("pipeline: intervals must be non-negative")
	}
	switch c.Transport {
	case netsim.NameReliable, netsim.NameLossy, netsim.NameInstant:
	default:
		return fmt.Errorf("pipeline: unknown transport %q", c.Transport)
	}
	if err := c.Netsim.Validate(); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads a config file through viper with ORDFLOW_* env
// overrides, falling back to defaults when the file is absent.
// Precedence: env > file > defaults. Every key is seeded into viper via
// SetDefault so AutomaticEnv resolves it even when neither the file nor
// the environment mentions it.
func LoadConfig(path string, logger *zap.Logger) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	seedDefaults(v, Default())

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Warn("config file not found, using defaults", zap.String("path", path))
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("pipeline: read config: %w", err)
			}
			logger.Info("configuration loaded", zap.String("file", v.ConfigFileUsed()))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("pipeline: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// seedDefaults registers every configuration key with viper. Viper only
// consults the environment for keys it knows about, so each key must be
// seeded for ORDFLOW_* overrides to take effect.
func seedDefaults(v *viper.Viper, d Config) {
	v.SetDefault("pipelines", d.Pipelines)
	v.SetDefault("ring_capacity", d.RingCapacity)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("batch_timeout", d.BatchTimeout)
	v.SetDefault("enable_batching", d.EnableBatching)
	v.SetDefault("producer_interval", d.ProducerInterval)
	v.SetDefault("consumer_poll", d.ConsumerPoll)
	v.SetDefault("runtime", d.Runtime)
	v.SetDefault("symbols", d.Symbols)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("telemetry_interval", d.TelemetryInterval)
	v.SetDefault("netsim.drop_rate", d.Netsim.DropRate)
	v.SetDefault("netsim.base_delay", d.Netsim.BaseDelay)
	v.SetDefault("netsim.max_retries", d.Netsim.MaxRetries)
	v.SetDefault("netsim.jitter", d.Netsim.Jitter)
	v.SetDefault("netsim.noise", d.Netsim.Noise)
	v.SetDefault("netsim.noise_enabled", d.Netsim.NoiseEnabled)
	v.SetDefault("netsim.noise_range", d.Netsim.NoiseRange)
	v.SetDefault("netsim.congestion_threshold", d.Netsim.CongestThresh)
	v.SetDefault("netsim.congestion_penalty", d.Netsim.CongestDelay)
	v.SetDefault("netsim.seed", d.Netsim.Seed)
}

// SampleYAML renders the default configuration, for documentation and
// bootstrap config files.
func SampleYAML() string {
	cfg := Default()
	data, _ := yaml.Marshal(cfg)
	return string(data)
}
