// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"dex-trade-stream/internal/domain"
)

// Storage backends.
const (
	BackendClickhouse = "clickhouse"
	BackendPostgres   = "postgres"
	BackendMemory     = "memory"
)

// Config holds the server configuration.
type Config struct {
	// Upstream
	RPCEndpoint   string        `env:"SOLANA_RPC_ENDPOINT"`
	WSEndpoint    string        `env:"SOLANA_WS_ENDPOINT"`
	WSReadTimeout time.Duration `env:"SOLANA_WS_READ_TIMEOUT"`
	DEXPrograms   []string      `env:"DEX_PROGRAMS" envSeparator:","`

	// Server
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":3000"`

	// Storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"clickhouse"`
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"clickhouse"`
	ClickhouseDSN  string `env:"CLICKHOUSE_DSN" envDefault:"clickhouse://default:@localhost:9000/default"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
	RunMigrations  bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	// Pipeline
	ReconnectDelay         time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`
	FetchWorkers           int           `env:"FETCH_WORKERS" envDefault:"64"`
	TradeBuffer            int           `env:"TRADE_BUFFER" envDefault:"100"`
	BroadcastBuffer        int           `env:"BROADCAST_BUFFER" envDefault:"1000"`
	DedupCapacity          int           `env:"DEDUP_CAPACITY" envDefault:"1000"`
	PriceInterval          time.Duration `env:"PRICE_INTERVAL" envDefault:"5s"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`
	FallbackPrice          float64       `env:"FALLBACK_PRICE" envDefault:"150"`

	// Oracle
	JupiterPriceURL string `env:"JUPITER_PRICE_URL" envDefault:"https://lite-api.jup.ag/price/v3"`
	JupiterQuoteURL string `env:"JUPITER_QUOTE_URL" envDefault:"https://quote-api.jup.ag/v6"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// Sinks
	KafkaBrokers []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `env:"KAFKA_TOPIC" envDefault:"dex-trades"`
	RedisURL     string        `env:"REDIS_URL"`
	RedisTTL     time.Duration `env:"REDIS_TTL" envDefault:"5m"`
}

// Load parses the environment into a Config. Programs default to every
// known DEX in match priority order.
func Load() (*Config, error) {
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if len(cfg.DEXPrograms) == 0 {
		cfg.DEXPrograms = domain.DefaultProgramIDs()
	}
	return cfg, nil
}

// IngestionEnabled reports whether both upstream endpoints are configured.
func (c *Config) IngestionEnabled() bool {
	return c.RPCEndpoint != "" && c.WSEndpoint != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendClickhouse, BackendMemory:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", c.StorageBackend)
	}

	switch c.SessionBackend {
	case BackendClickhouse, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for SESSION_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid SESSION_BACKEND: %q", c.SessionBackend)
	}

	if c.StorageBackend == BackendClickhouse || c.SessionBackend == BackendClickhouse {
		if _, err := url.Parse(c.ClickhouseDSN); err != nil || c.ClickhouseDSN == "" {
			return fmt.Errorf("invalid CLICKHOUSE_DSN: %q", c.ClickhouseDSN)
		}
	}

	if c.JWTSecret == "" && c.SessionBackend != BackendMemory {
		return fmt.Errorf("JWT_SECRET is required unless SESSION_BACKEND=memory")
	}

	if c.WSEndpoint != "" && !strings.HasPrefix(c.WSEndpoint, "ws://") && !strings.HasPrefix(c.WSEndpoint, "wss://") {
		return fmt.Errorf("SOLANA_WS_ENDPOINT must be a ws:// or wss:// URL")
	}

	if c.FetchWorkers < 0 {
		return fmt.Errorf("FETCH_WORKERS must be >= 0, got %d", c.FetchWorkers)
	}
	if c.TradeBuffer < 1 || c.BroadcastBuffer < 1 || c.DedupCapacity < 1 {
		return fmt.Errorf("TRADE_BUFFER, BROADCAST_BUFFER and DEDUP_CAPACITY must be positive")
	}
	if c.ReconnectDelay < 0 || c.WSReadTimeout < 0 {
		return fmt.Errorf("RECONNECT_DELAY and SOLANA_WS_READ_TIMEOUT must not be negative")
	}
	if c.PriceInterval <= 0 {
		return fmt.Errorf("PRICE_INTERVAL must be positive")
	}
	if !domain.ValidPrice(c.FallbackPrice) {
		return fmt.Errorf("FALLBACK_PRICE must be a positive number")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}

	return nil
}

// LoadEnvFile copies KEY=VALUE lines from path into the environment.
// Variables already set are not overridden. A missing file is ignored.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)

		if _, exists := os.LookupEnv(key); !exists {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}
