// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	StoreBackend        string        `mapstructure:"STORE_BACKEND"`
	RecallBackend       string        `mapstructure:"RECALL_BACKEND"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	KafkaBrokersRaw     string        `mapstructure:"KAFKA_BROKERS"`
	APIKeysRaw          string        `mapstructure:"API_KEYS"`
	TracingEnabled      bool          `mapstructure:"TRACING_ENABLED"`
	OTLPEndpoint        string        `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate     float64       `mapstructure:"TRACE_SAMPLE_RATE"`
	OutboxBatchSize     int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	OutboxPollInterval  time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	QueueWorkers        int           `mapstructure:"QUEUE_WORKERS"`
	StoreBreakerTimeout time.Duration `mapstructure:"STORE_BREAKER_TIMEOUT"`
	SessionIdleTimeout  time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`

	// KafkaBrokers is KAFKA_BROKERS split on commas
	KafkaBrokers []string `mapstructure:"-"`
	// APIKeys maps API key to client name, from "key:client" pairs
	APIKeys map[string]string `mapstructure:"-"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"STORE_BACKEND", "RECALL_BACKEND", "REDIS_URL", "KAFKA_BROKERS", "API_KEYS",
	"TRACING_ENABLED", "OTLP_ENDPOINT", "TRACE_SAMPLE_RATE", "OUTBOX_BATCH_SIZE",
	"OUTBOX_POLL_INTERVAL", "QUEUE_WORKERS", "STORE_BREAKER_TIMEOUT",
	"SESSION_IDLE_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("STORE_BACKEND", BackendPostgres)
	v.SetDefault("RECALL_BACKEND", BackendPostgres)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_POLL_INTERVAL", "200ms")
	v.SetDefault("QUEUE_WORKERS", 4)
	v.SetDefault("STORE_BREAKER_TIMEOUT", "2s")
	v.SetDefault("SESSION_IDLE_TIMEOUT", "4h")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.KafkaBrokers = splitList(cfg.KafkaBrokersRaw)

	apiKeys, err := parseAPIKeys(cfg.APIKeysRaw)
	if err != nil {
		return nil, err
	}
	cfg.APIKeys = apiKeys

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is %q", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend)
	}

	switch c.RecallBackend {
	case BackendPostgres, BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when RECALL_BACKEND is %q", BackendRedis)
		}
	default:
		return fmt.Errorf("RECALL_BACKEND must be %q or %q, got %q", BackendPostgres, BackendRedis, c.RecallBackend)
	}

	if !c.IsDev() && len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS is required outside development (ENV=%q)", c.Env)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive, got %v", c.SessionIdleTimeout)
	}
	if c.QueueWorkers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1, got %d", c.QueueWorkers)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeys reads "key1:client1,key2:client2"
func parseAPIKeys(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(s) {
		key, client, ok := strings.Cut(pair, ":")
		key, client = strings.TrimSpace(key), strings.TrimSpace(client)
		if !ok || key == "" || client == "" {
			return nil, fmt.Errorf("API_KEYS entry %q is not key:client", pair)
		}
		out[key] = client
	}
	return out, nil
}
