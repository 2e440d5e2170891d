package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ErrMissing marks a required setting that is not set.
var ErrMissing = errors.New("required setting missing")

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `envconfig:"APP_NAME" default:"InvoiceReconciler"`
	AppEnv         string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LedgerRPCURL  string        `envconfig:"LEDGER_RPC_URL"`
	LedgerTimeout time.Duration `envconfig:"LEDGER_TIMEOUT" default:"15s"`

	PackageID           string `envconfig:"PACKAGE_ID"`
	InvoiceModule       string `envconfig:"INVOICE_MODULE" default:"invoice"`
	InvoiceCreatedEvent string `envconfig:"INVOICE_CREATED_EVENT" default:"InvoiceCreated"`
	EscrowType          string `envconfig:"ESCROW_TYPE" default:"Escrow"`
	FundingType         string `envconfig:"FUNDING_TYPE" default:"Funding"`
	TreasuryID          string `envconfig:"TREASURY_ID"`
	BusinessCapType     string `envconfig:"BUSINESS_CAP_TYPE"`

	CacheBackend string `envconfig:"CACHE_BACKEND" default:"memory"`
	CachePrefix  string `envconfig:"CACHE_PREFIX" default:"reconciler:"`
	RedisURL     string `envconfig:"REDIS_URL"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	DiscoveryPageSize      int           `envconfig:"DISCOVERY_PAGE_SIZE" default:"100"`
	DiscoveryMaxPages      int           `envconfig:"DISCOVERY_MAX_PAGES" default:"1"`
	DiscoveryRetries       int           `envconfig:"DISCOVERY_RETRIES" default:"2"`
	DiscoveryRetryInterval time.Duration `envconfig:"DISCOVERY_RETRY_INTERVAL" default:"200ms"`
	TimelineMaxPages       int           `envconfig:"TIMELINE_MAX_PAGES" default:"10"`
	FetchConcurrency       int           `envconfig:"FETCH_CONCURRENCY" default:"8"`

	OriginationFeeBps  int64 `envconfig:"ORIGINATION_FEE_BPS" default:"100"`
	TakeRateBps        int64 `envconfig:"TAKE_RATE_BPS" default:"1000"`
	SettlementFeeMicro int64 `envconfig:"SETTLEMENT_FEE_MICRO" default:"10000000"`
	MaxDiscountBps     int64 `envconfig:"MAX_DISCOUNT_BPS" default:"5000"`

	ResponseCacheTTL   time.Duration `envconfig:"RESPONSE_CACHE_TTL" default:"5s"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	AdminTokenHash     string        `envconfig:"ADMIN_TOKEN_HASH"`
}

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required settings and cross-field constraints.
func (c Config) Validate() error {
	if c.LedgerRPCURL == "" {
		return fmt.Errorf("%w: LEDGER_RPC_URL", ErrMissing)
	}
	if c.PackageID == "" {
		return fmt.Errorf("%w: PACKAGE_ID", ErrMissing)
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%w: REDIS_URL is required when CACHE_BACKEND=redis", ErrMissing)
		}
	case CachePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL is required when CACHE_BACKEND=postgres", ErrMissing)
		}
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: want memory, redis or postgres", c.CacheBackend)
	}

	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("invalid FETCH_CONCURRENCY %d: must be positive", c.FetchConcurrency)
	}
	if c.DiscoveryPageSize <= 0 || c.DiscoveryPageSize > 1000 {
		return fmt.Errorf("invalid DISCOVERY_PAGE_SIZE %d: must be within 1..1000", c.DiscoveryPageSize)
	}
	if c.MaxDiscountBps <= 0 || c.MaxDiscountBps > 10000 {
		return fmt.Errorf("invalid MAX_DISCOUNT_BPS %d: must be within 1..10000", c.MaxDiscountBps)
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}
