package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreNone     = "none"
	StorePebble   = "pebble"
	StorePostgres = "postgres"
)

// Candle cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// MinTradeRetention is the widest candle bucket. A shorter retention would
// prune trades of buckets that are still open.
const MinTradeRetention = 24 * time.Hour

// Config holds all runtime configuration for matchbook.
type Config struct {
	Port       int    `env:"PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Instrument string `env:"INSTRUMENT" envDefault:"DEFAULT"`

	TradeRetention    time.Duration `env:"TRADE_RETENTION" envDefault:"24h"`
	DedupWindow       time.Duration `env:"DEDUP_WINDOW" envDefault:"1s"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"30s"`
	EventQueueSize    int           `env:"EVENT_QUEUE_SIZE" envDefault:"1024"`
	StatsInterval     time.Duration `env:"STATS_INTERVAL" envDefault:"5s"`

	Store   StoreConfig
	Cache   CacheConfig
	Kafka   KafkaConfig
	Webhook WebhookConfig

	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// StoreConfig selects where the book and ledger are flushed.
type StoreConfig struct {
	Backend       string        `env:"STORE_BACKEND" envDefault:"none"`
	PebbleDir     string        `env:"PEBBLE_DIR" envDefault:"./data"`
	PostgresDSN   string        `env:"POSTGRES_DSN"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`
	FlushRetries  int           `env:"FLUSH_RETRIES" envDefault:"3"`
}

// CacheConfig selects the candle cache.
type CacheConfig struct {
	Backend       string `env:"CANDLE_CACHE" envDefault:"memory"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// KafkaConfig enables the Kafka sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"market-events"`
}

// WebhookConfig enables the webhook sink when URL is set.
type WebhookConfig struct {
	URL     string        `env:"WEBHOOK_URL"`
	Timeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
}

// Load reads configuration from an optional .env file and environment
// variables, applies defaults, and validates values. It returns an error
// for any invalid value.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.Instrument == "" {
		return fmt.Errorf("invalid INSTRUMENT: must not be empty")
	}

	positive := []struct {
		key string
		val time.Duration
	}{
		{"TRADE_RETENTION", c.TradeRetention},
		{"KEEPALIVE_INTERVAL", c.KeepaliveInterval},
		{"STATS_INTERVAL", c.StatsInterval},
		{"FLUSH_INTERVAL", c.Store.FlushInterval},
		{"WEBHOOK_TIMEOUT", c.Webhook.Timeout},
		{"READ_TIMEOUT", c.ReadTimeout},
		{"IDLE_TIMEOUT", c.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", c.ShutdownTimeout},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("invalid %s: %v, must be positive", p.key, p.val)
		}
	}
	if c.TradeRetention < MinTradeRetention {
		return fmt.Errorf("invalid TRADE_RETENTION: %v, must be at least %v", c.TradeRetention, MinTradeRetention)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WRITE_TIMEOUT: %v, must not be negative", c.WriteTimeout)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("invalid EVENT_QUEUE_SIZE: %d, must be positive", c.EventQueueSize)
	}
	if c.Store.FlushRetries < 0 {
		return fmt.Errorf("invalid FLUSH_RETRIES: %d, must not be negative", c.Store.FlushRetries)
	}

	switch c.Store.Backend {
	case StoreNone, StorePebble:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q, must be one of: none, pebble, postgres", c.Store.Backend)
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("invalid CANDLE_CACHE: %q, must be one of: memory, redis", c.Cache.Backend)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
