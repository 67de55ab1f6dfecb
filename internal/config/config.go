// Package config carrega a configuração dos binários a partir de variáveis de ambiente.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Config reúne tudo que cmd/worker e cmd/synctool leem do ambiente.
type Config struct {
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	QueuePrefix string `env:"QUEUE_PREFIX" envDefault:"{crmsync}"`
	// WorkerID estável permite recuperar entregas órfãs após restart. Vazio usa o hostname.
	WorkerID  string `env:"WORKER_ID"`
	RulesFile string `env:"RULES_FILE"`

	DefaultRateLimit int           `env:"RATE_LIMIT" envDefault:"60"`
	RateWindow       time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerTimeout   time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	RateLimitDelay   time.Duration `env:"RATE_LIMIT_DELAY" envDefault:"30s"`
	CircuitOpenDelay time.Duration `env:"CIRCUIT_OPEN_DELAY" envDefault:"60s"`

	Concurrency    int           `env:"WORKER_CONCURRENCY" envDefault:"10"`
	AcquireTimeout time.Duration `env:"WORKER_ACQUIRE_TIMEOUT" envDefault:"0s"`
	// IMPORTANTE: QUEUE_RPS é por processo. O limite que vale entre workers é o RATE_LIMIT.
	PacerRPS     float64       `env:"QUEUE_RPS" envDefault:"0"`
	PacerBurst   int           `env:"QUEUE_BURST" envDefault:"20"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	MetricsAddr  string        `env:"METRICS_ADDR" envDefault:":9090"`
	StatsEnabled bool          `env:"STATS_ENABLED" envDefault:"true"`
	StatsPrefix  string        `env:"STATS_PREFIX" envDefault:"crmsync:stats"`
	StatsTTL     time.Duration `env:"STATS_TTL" envDefault:"24h"`
	StatsBucket  string        `env:"STATS_BUCKET" envDefault:"minute"`

	LogVerbosity int  `env:"LOG_VERBOSITY" envDefault:"0"`
	LogDev       bool `env:"LOG_DEV" envDefault:"false"`
}

// Load lê o ambiente e valida o resultado.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		cfg.WorkerID = host
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.DefaultRateLimit <= 0 {
		return errors.New("RATE_LIMIT must be > 0")
	}
	if c.RateWindow <= 0 {
		return errors.New("RATE_WINDOW must be > 0")
	}
	if c.BreakerThreshold <= 0 {
		return errors.New("BREAKER_THRESHOLD must be > 0")
	}
	if c.BreakerTimeout <= 0 {
		return errors.New("BREAKER_TIMEOUT must be > 0")
	}
	if c.Concurrency <= 0 {
		return errors.New("WORKER_CONCURRENCY must be > 0")
	}
	if c.PacerRPS < 0 {
		return errors.New("QUEUE_RPS must be >= 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("MAX_RETRIES must be >= 0")
	}
	switch c.StatsBucket {
	case "minute", "none":
	default:
		return fmt.Errorf("STATS_BUCKET must be minute or none, got %q", c.StatsBucket)
	}
	return nil
}

// Retries converte MaxRetries para o Runner. Lá 0 significa "usar o padrão",
// então MAX_RETRIES=0 vira -1 (nenhum retry).
func (c Config) Retries() int {
	if c.MaxRetries == 0 {
		return -1
	}
	return c.MaxRetries
}

// NewRedisClient conecta e faz ping com timeout de 2s.
func (c Config) NewRedisClient(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
	}
	return rdb, nil
}
