// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
)

// Config is the full service configuration.
type Config struct {
	Service       ServiceConfig
	Aggregation   AggregationConfig
	LastSent      LastSentConfig
	Gate          GateConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the service and its listeners.
type ServiceConfig struct {
	Principal string
	GRPCPort  string
	HTTPAddr  string
}

// AggregationConfig drives the session registry and tuning.
type AggregationConfig struct {
	DefaultMode   aggregator.Mode
	TuningFile    string
	SessionTTL    time.Duration
	MaxSessions   int
	SweepInterval time.Duration
	CommitLogSize int
	// MergeGroupTimeout overrides the merge-group age limit of every mode when set.
	MergeGroupTimeout time.Duration
}

// LastSentConfig drives the last-sent deduplicator.
type LastSentConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// GateConfig holds the gate length thresholds.
type GateConfig struct {
	DiscardBelowChars int
	SendAtChars       int
}

// KafkaConfig configures the event publisher.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicSegment string
	TopicMerge   string
	Principal    string
}

// ObservabilityConfig configures logging and error reporting.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	SentryDSN   string
	Environment string
}

// Load reads the configuration. Invalid values fall back to defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-lingua-aggregator")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		},
		Aggregation: AggregationConfig{
			DefaultMode:       aggregator.Mode(envOrDefault("AGGREGATOR_DEFAULT_MODE", string(aggregator.ModeOffline))),
			TuningFile:        envOrDefault("AGGREGATOR_TUNING_FILE", ""),
			SessionTTL:        envOrDefaultDuration("AGGREGATOR_SESSION_TTL", 5*time.Minute),
			MaxSessions:       envOrDefaultInt("AGGREGATOR_MAX_SESSIONS", 1000),
			SweepInterval:     envOrDefaultDuration("AGGREGATOR_SWEEP_INTERVAL", 30*time.Second),
			CommitLogSize:     envOrDefaultInt("AGGREGATOR_COMMIT_LOG_SIZE", 50),
			MergeGroupTimeout: envOrDefaultDuration("AGGREGATOR_MERGE_GROUP_TIMEOUT", 0),
		},
		LastSent: LastSentConfig{
			TTL:           envOrDefaultDuration("LAST_SENT_TTL", 10*time.Minute),
			SweepInterval: envOrDefaultDuration("LAST_SENT_SWEEP_INTERVAL", 5*time.Minute),
		},
		Gate: GateConfig{
			DiscardBelowChars: envOrDefaultInt("GATE_DISCARD_BELOW_CHARS", 6),
			SendAtChars:       envOrDefaultInt("GATE_SEND_AT_CHARS", 40),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      splitList(envOrDefault("KAFKA_BROKERS", "")),
			TopicSegment: envOrDefault("SEGMENT_TOPIC", "lingua.aggregator.segment"),
			TopicMerge:   envOrDefault("MERGE_TOPIC", "lingua.aggregator.merge"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			SentryDSN:   envOrDefault("SENTRY_DSN", ""),
			Environment: envOrDefault("ENV", "production"),
		},
	}
}

// Tunings builds the tuning set: built-in defaults, then the optional YAML
// profile, then the merge-group timeout override.
func (c *Config) Tunings() (aggregator.TuningSet, error) {
	set := aggregator.DefaultTuningSet()
	if c.Aggregation.TuningFile != "" {
		data, err := os.ReadFile(c.Aggregation.TuningFile)
		if err != nil {
			return nil, fmt.Errorf("read tuning file: %w", err)
		}
		if set, err = aggregator.ParseTuningProfile(data, set); err != nil {
			return nil, fmt.Errorf("tuning file %s: %w", c.Aggregation.TuningFile, err)
		}
	}
	if ms := c.Aggregation.MergeGroupTimeout.Milliseconds(); ms > 0 {
		for mode, t := range set {
			t.MergeGroupTimeoutMs = ms
			set[mode] = t
		}
	}
	return set, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
