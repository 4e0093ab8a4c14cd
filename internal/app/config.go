package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/eshop/internal/domain/pricing"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ESHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage      string `default:"memory" usage:"Storage backend: memory or postgres"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ESHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	SeedDemoData bool   `default:"true" usage:"Load demo users and products into an empty store" flag:"seed-demo-data"`
	Payment      PaymentConfig
	Discount     DiscountConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// PaymentConfig controls the simulated payment methods.
type PaymentConfig struct {
	Timeout         time.Duration `default:"30s" usage:"Maximum time to wait for a payment to settle"`
	SettlementDelay time.Duration `default:"0s"  usage:"Simulated settlement round-trip" flag:"settlement-delay"`
}

// DiscountConfig is the loyalty schedule: Percent off once a user has at
// least Orders completed orders.
type DiscountConfig struct {
	SilverOrders  int `default:"5"  usage:"Completed orders for the silver discount" flag:"silver-orders"`
	SilverPercent int `default:"5"  usage:"Silver discount percent" flag:"silver-percent"`
	GoldOrders    int `default:"10" usage:"Completed orders for the gold discount" flag:"gold-orders"`
	GoldPercent   int `default:"10" usage:"Gold discount percent" flag:"gold-percent"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ESHOP",
		Files:     []string{"config.yaml", "/etc/eshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps the platform-provided DATABASE_URL and PORT onto
// the ESHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres storage: set ESHOP_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Payment.Timeout < 0 || c.Payment.SettlementDelay < 0 {
		return errors.New("payment durations must not be negative")
	}
	d := c.Discount
	for _, p := range []int{d.SilverPercent, d.GoldPercent} {
		if p < 0 || p > 100 {
			return errors.Errorf("discount percent %d out of range [0, 100]", p)
		}
	}
	if d.SilverOrders <= 0 || d.GoldOrders <= d.SilverOrders {
		return errors.Errorf("discount thresholds must satisfy 0 < silver (%d) < gold (%d)", d.SilverOrders, d.GoldOrders)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// Tiers converts the discount settings into a pricing schedule.
func (d DiscountConfig) Tiers() pricing.Tiers {
	return pricing.Tiers{
		{MinOrders: d.GoldOrders, Percent: decimal.NewFromInt(int64(d.GoldPercent))},
		{MinOrders: d.SilverOrders, Percent: decimal.NewFromInt(int64(d.SilverPercent))},
	}
}
