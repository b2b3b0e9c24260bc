package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/presale/client"
	"github.com/brojonat/presale/service/chains"
	"github.com/brojonat/presale/service/pricing"
	"github.com/brojonat/presale/service/retry"
	"github.com/brojonat/presale/service/solana"
	"github.com/joho/godotenv"
)

const (
	DefaultPresaleStart        = "2025-06-01T00:00:00Z"
	DefaultPresaleDurationDays = 30
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Empty disables the purchase ledger.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Referral backend
	BackendURL string

	// Presale
	Testnet             bool
	PresaleStart        time.Time
	PresaleDurationDays int

	// Balance polling and RPC retry
	BalancePollInterval time.Duration
	RetryMaxAttempts    int
	RetryDelay          time.Duration

	// Wallet and dispatch
	SolanaFeeLamports uint64
	SwitchTimeout     time.Duration
	ConfirmTimeout    time.Duration
	DisconnectGrace   time.Duration

	// Per-network RPC and recipient overrides from <NETWORK>_RPC_URL and
	// <NETWORK>_RECIPIENT.
	NetworkOverrides map[chains.Network]chains.Override
}

// Load reads configuration from environment variables and validates all required fields.
// A .env file in the working directory is loaded first when present.
// Returns an error if any configuration is invalid.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "presale-balance-polling")

	cfg.BackendURL = getEnvOrDefault("BACKEND_URL", client.DefaultBaseURL)

	// Presale window
	testnet, err := parseBool("PRESALE_TESTNET", false)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Testnet = testnet

	start := getEnvOrDefault("PRESALE_START", DefaultPresaleStart)
	cfg.PresaleStart, err = time.Parse(time.RFC3339, start)
	if err != nil {
		errs = append(errs, fmt.Errorf("PRESALE_START: invalid RFC3339 time %q: %w", start, err))
	}
	cfg.PresaleDurationDays, err = parseInt("PRESALE_DURATION_DAYS", DefaultPresaleDurationDays)
	if err != nil {
		errs = append(errs, err)
	}

	// Polling and retry
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"BALANCE_POLL_INTERVAL", "2m", &cfg.BalancePollInterval},
		{"RETRY_DELAY", "1s", &cfg.RetryDelay},
		{"SWITCH_TIMEOUT", "30s", &cfg.SwitchTimeout},
		{"CONFIRM_TIMEOUT", "90s", &cfg.ConfirmTimeout},
		{"DISCONNECT_GRACE", "1s", &cfg.DisconnectGrace},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*d.dst = v
	}

	cfg.RetryMaxAttempts, err = parseInt("RETRY_MAX_ATTEMPTS", retry.DefaultMaxAttempts)
	if err != nil {
		errs = append(errs, err)
	}

	fee, err := parseInt("SOLANA_FEE_LAMPORTS", int(solana.DefaultFeeLamports))
	if err != nil {
		errs = append(errs, err)
	}
	if fee < 0 {
		errs = append(errs, fmt.Errorf("SOLANA_FEE_LAMPORTS cannot be negative"))
	} else {
		cfg.SolanaFeeLamports = uint64(fee)
	}

	cfg.NetworkOverrides = loadOverrides()

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.BackendURL == "" {
		errs = append(errs, fmt.Errorf("BackendURL is required"))
	}

	if c.PresaleStart.IsZero() {
		errs = append(errs, fmt.Errorf("PresaleStart is required"))
	}

	if c.PresaleDurationDays < 1 {
		errs = append(errs, fmt.Errorf("PresaleDurationDays must be at least 1"))
	}

	if c.BalancePollInterval < time.Second {
		errs = append(errs, fmt.Errorf("BalancePollInterval must be at least 1 second"))
	}

	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("RetryMaxAttempts must be at least 1"))
	}

	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("RetryDelay cannot be negative"))
	}

	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ConfirmTimeout must be positive"))
	}

	if c.SwitchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SwitchTimeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// Window returns the presale window.
func (c *Config) Window() pricing.Window {
	return pricing.Window{Start: c.PresaleStart, DurationDays: c.PresaleDurationDays}
}

// RetryPolicy returns the RPC retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.Default()
	p.MaxAttempts = c.RetryMaxAttempts
	p.Delay = c.RetryDelay
	return p
}

// Registry returns the default network registry with the env overrides applied.
func (c *Config) Registry() (*chains.Registry, error) {
	if len(c.NetworkOverrides) == 0 {
		return chains.DefaultRegistry(), nil
	}
	return chains.DefaultRegistry().WithOverrides(c.NetworkOverrides)
}

var overrideNetworks = []chains.Network{
	chains.ETH, chains.BSC, chains.BASE, chains.SOL,
	chains.ETHTest, chains.BSCTest, chains.BASETest, chains.SOLTest,
}

// loadOverrides reads ETH_RPC_URL, SOL_TEST_RECIPIENT and friends. RPC
// URLs are comma-separated.
func loadOverrides() map[chains.Network]chains.Override {
	out := make(map[chains.Network]chains.Override)
	for _, key := range overrideNetworks {
		var o chains.Override
		if raw := os.Getenv(string(key) + "_RPC_URL"); raw != "" {
			for _, u := range strings.Split(raw, ",") {
				if u = strings.TrimSpace(u); u != "" {
					o.RPCURLs = append(o.RPCURLs, u)
				}
			}
		}
		o.Recipient = strings.TrimSpace(os.Getenv(string(key) + "_RECIPIENT"))
		if len(o.RPCURLs) > 0 || o.Recipient != "" {
			out[key] = o
		}
	}
	return out
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
