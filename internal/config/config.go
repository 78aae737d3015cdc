// Package config builds the process-wide immutable configuration. Everything
// is read once at startup and passed into constructors; business logic never
// looks up the environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/recircle/rewards/internal/models"
	"github.com/recircle/rewards/internal/policy"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Ledger      LedgerConfig
	Distributor DistributorConfig
	Rewards     RewardsConfig
	Database    DatabaseConfig
	Redis       RedisConfig
}

// ServerConfig holds the HTTP boundary configuration.
type ServerConfig struct {
	Port       string
	AuthSecret string
	TokenTTL   time.Duration
}

// LedgerConfig holds the chain node configuration. URL "solo" selects the
// in-memory chain for local development.
type LedgerConfig struct {
	URL               string
	RequestTimeout    time.Duration
	PollInterval      time.Duration
	ConfirmTimeout    time.Duration
	MaxSubmitAttempts int
	RetryBackoff      time.Duration
}

// DistributorConfig holds the signing wallet's opaque credential.
type DistributorConfig struct {
	PrivateKey string
}

// RewardsConfig holds the split percentages and fund destinations.
type RewardsConfig struct {
	Split         policy.Config
	FundAddresses map[string]string
	TokenDecimals int32
}

// DatabaseConfig holds the audit log storage configuration.
type DatabaseConfig struct {
	Path string
}

// RedisConfig holds the optional result cache configuration. An empty Addr
// disables the cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Load reads configuration from the environment. A local .env file is read
// first without overwriting variables that are already set.
func Load() (*Config, error) {
	if envMap, err := godotenv.Read(); err == nil {
		for k, v := range envMap {
			if os.Getenv(k) == "" {
				os.Setenv(k, v)
			}
		}
	}

	split, err := parseSplit(getEnv("SPLIT_CONFIG", "user:70,app:30"))
	if err != nil {
		return nil, err
	}
	funds, err := parseFunds(os.Getenv("FUND_ADDRESSES"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:       getEnv("SERVER_PORT", "8080"),
			AuthSecret: os.Getenv("AUTH_SECRET"),
			TokenTTL:   getEnvDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Ledger: LedgerConfig{
			URL:               getEnv("LEDGER_URL", "solo"),
			RequestTimeout:    getEnvDuration("LEDGER_REQUEST_TIMEOUT", 10*time.Second),
			PollInterval:      getEnvDuration("LEDGER_POLL_INTERVAL", 3*time.Second),
			ConfirmTimeout:    getEnvDuration("LEDGER_CONFIRM_TIMEOUT", 90*time.Second),
			MaxSubmitAttempts: getEnvInt("LEDGER_MAX_SUBMIT_ATTEMPTS", 3),
			RetryBackoff:      getEnvDuration("LEDGER_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Distributor: DistributorConfig{
			PrivateKey: os.Getenv("DISTRIBUTOR_KEY"),
		},
		Rewards: RewardsConfig{
			Split:         split,
			FundAddresses: funds,
			TokenDecimals: int32(getEnvInt("TOKEN_DECIMALS", 18)),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/settlements.db"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("REDIS_TTL", 0), // 0 = no expiry
		},
	}

	return cfg, nil
}

// Validate checks the configuration. Malformed split or fund settings are
// startup-fatal; they must never surface as per-request errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if c.Distributor.PrivateKey == "" {
		return fmt.Errorf("DISTRIBUTOR_KEY is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Rewards.TokenDecimals < 0 || c.Rewards.TokenDecimals > 30 {
		return fmt.Errorf("token decimals %d out of range", c.Rewards.TokenDecimals)
	}
	if err := c.Rewards.Split.Validate(); err != nil {
		return fmt.Errorf("invalid split config: %w", err)
	}

	seen := make(map[string]string, len(c.Rewards.FundAddresses))
	for _, share := range c.Rewards.Split {
		if share.Role == models.RoleUser {
			continue
		}
		addr, ok := c.Rewards.FundAddresses[share.Role]
		if !ok {
			return fmt.Errorf("no fund address configured for role %q", share.Role)
		}
		if !addressPattern.MatchString(addr) {
			return fmt.Errorf("malformed fund address %q for role %q", addr, share.Role)
		}
		lower := strings.ToLower(addr)
		if prev, dup := seen[lower]; dup {
			return fmt.Errorf("fund roles %q and %q share address %s", prev, share.Role, addr)
		}
		seen[lower] = share.Role
	}
	return nil
}

// parseSplit parses "user:70,app:30" into a split configuration.
func parseSplit(raw string) (policy.Config, error) {
	var cfg policy.Config
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		role, pctStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed split entry %q, want role:percent", part)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(pctStr))
		if err != nil {
			return nil, fmt.Errorf("malformed split percent in %q: %w", part, err)
		}
		cfg = append(cfg, policy.Share{Role: strings.TrimSpace(role), Percent: pct})
	}
	return cfg, nil
}

// parseFunds parses "app=0x...,creator=0x..." into a role-address map.
func parseFunds(raw string) (map[string]string, error) {
	funds := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		role, addr, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed fund entry %q, want role=address", part)
		}
		funds[strings.TrimSpace(role)] = strings.TrimSpace(addr)
	}
	return funds, nil
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable ("90s", "3m") or
// returns the default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
