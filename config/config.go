package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"fundledger/internal/ledger"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Payment  PaymentConfig
	Ledger   LedgerConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RateLimit      int
	RateLimitEvery time.Duration
}

type DatabaseConfig struct {
	Driver          string // mysql | sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type PaymentConfig struct {
	WebhookSecret string // verifies payment-authorized callbacks; empty disables the check
}

// LedgerConfig holds the tunables that may also come from the TOML file
// named by LEDGER_CONFIG.
type LedgerConfig struct {
	PoolCategories      []ledger.Share         `toml:"pool_categories"`
	Badges              ledger.BadgeThresholds `toml:"badges"`
	DispatchIntervalSec int                    `toml:"dispatch_interval_sec"`
	WebhookTimeoutSec   int                    `toml:"webhook_timeout_sec"`
	LeaderboardSize     int                    `toml:"leaderboard_size"`
}

func (c LedgerConfig) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSec) * time.Second
}

func (c LedgerConfig) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutSec) * time.Second
}

func DefaultLedger() LedgerConfig {
	return LedgerConfig{
		PoolCategories: []ledger.Share{
			{Name: "Medical Supplies", Percentage: 40},
			{Name: "Infrastructure", Percentage: 30},
			{Name: "Training", Percentage: 20},
			{Name: "Operations", Percentage: 10},
		},
		Badges:              ledger.DefaultThresholds(),
		DispatchIntervalSec: 5,
		WebhookTimeoutSec:   10,
		LeaderboardSize:     10,
	}
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getenv("SERVER_PORT", "8099"),
			Env:            getenv("APP_ENV", "development"),
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			RateLimit:      getenvInt("RATE_LIMIT", 100),
			RateLimitEvery: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          getenv("DATABASE_DRIVER", "sqlite"),
			DSN:             getenv("DATABASE_DSN", "fundledger.db"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: getenv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: 15 * time.Minute,
			Issuer:       getenv("JWT_ISSUER", "fundledger"),
		},
		Payment: PaymentConfig{
			WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		},
		Ledger: DefaultLedger(),
	}
	if path := os.Getenv("LEDGER_CONFIG"); path != "" {
		lc, err := LoadLedgerFile(path, cfg.Ledger)
		if err != nil {
			log.Printf("[config] ignoring %s: %v", path, err)
		} else {
			cfg.Ledger = lc
		}
	}
	return cfg
}

// LoadLedgerFile overlays the TOML file at path onto base. Keys missing from
// the file keep their base value.
func LoadLedgerFile(path string, base LedgerConfig) (LedgerConfig, error) {
	out := base
	out.PoolCategories = append([]ledger.Share(nil), base.PoolCategories...)
	if _, err := toml.DecodeFile(path, &out); err != nil {
		return base, fmt.Errorf("parsing ledger config: %w", err)
	}
	if err := ledger.ValidateShares(out.PoolCategories); err != nil {
		return base, fmt.Errorf("pool_categories: %w", err)
	}
	if out.DispatchIntervalSec <= 0 {
		out.DispatchIntervalSec = base.DispatchIntervalSec
	}
	if out.WebhookTimeoutSec <= 0 {
		out.WebhookTimeoutSec = base.WebhookTimeoutSec
	}
	if out.LeaderboardSize <= 0 {
		out.LeaderboardSize = base.LeaderboardSize
	}
	return out, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
