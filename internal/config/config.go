// Package config provides configuration management for the ledger service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/wheel_ledger/internal/market"
	"github.com/eddiefleurent/wheel_ledger/internal/pricing"
	"github.com/eddiefleurent/wheel_ledger/internal/retry"
	"github.com/eddiefleurent/wheel_ledger/internal/storage/postgres"
)

// Storage backends
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
)

// Price feed providers
const (
	ProviderTradier = "tradier"
	ProviderMock    = "mock"
)

const (
	defaultServerAddr        = ":8080"
	defaultReconcileInterval = "15m"
	defaultStoragePath       = "data/ledger.json"
	defaultPricingTimeout    = "10s"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Server      ServerConfig      `yaml:"server"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Pricing     PricingConfig     `yaml:"pricing"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"` // empty disables X-Auth-Token checks
}

// ScheduleConfig defines the exchange calendar and the background sweep.
type ScheduleConfig struct {
	Timezone          string `yaml:"timezone"`           // e.g., "America/New_York"
	MarketClose       string `yaml:"market_close"`       // "HH:MM" expiration cutoff
	ReconcileInterval string `yaml:"reconcile_interval"` // "0" disables the sweep
}

// StorageConfig defines where records are kept.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // json | postgres
	Path     string `yaml:"path"`
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// PricingConfig defines the live option price feed.
type PricingConfig struct {
	Provider          string               `yaml:"provider"` // tradier | mock | "" (disabled)
	APIKey            string               `yaml:"api_key"`
	APIEndpoint       string               `yaml:"api_endpoint"`
	Sandbox           bool                 `yaml:"sandbox"`
	Timeout           string               `yaml:"timeout"`
	RequestsPerMinute int                  `yaml:"requests_per_minute"`
	MaxConcurrency    int                  `yaml:"max_concurrency"`
	Retry             RetryConfig          `yaml:"retry"`
	CircuitBreaker    CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig bounds retries of quote lookups.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// CircuitBreakerConfig configures the breaker around the price feed.
type CircuitBreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML after expanding environment variables, applies defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Default returns a validated configuration with every default applied,
// used when no config file is present.
func Default() *Config {
	var c Config
	c.normalize()
	return &c
}

// normalize sets default values for unset fields
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = market.DefaultTimezone
	}
	if c.Schedule.MarketClose == "" {
		c.Schedule.MarketClose = market.DefaultCloseTime
	}
	if c.Schedule.ReconcileInterval == "" {
		c.Schedule.ReconcileInterval = defaultReconcileInterval
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendJSON
	}
	if c.Storage.Backend == BackendJSON && c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Pricing.Timeout == "" {
		c.Pricing.Timeout = defaultPricingTimeout
	}
	if c.Pricing.MaxConcurrency == 0 {
		c.Pricing.MaxConcurrency = pricing.DefaultMaxConcurrency
	}
	if c.Pricing.Retry.MaxRetries == 0 {
		c.Pricing.Retry.MaxRetries = retry.DefaultConfig.MaxRetries
	}
	cb := &c.Pricing.CircuitBreaker
	if cb.MaxRequests == 0 {
		cb.MaxRequests = pricing.DefaultBreakerSettings.MaxRequests
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = pricing.DefaultBreakerSettings.MinRequests
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = pricing.DefaultBreakerSettings.FailureRatio
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level must be debug, info, warn or error")
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	// Schedule validation
	if _, err := time.Parse("15:04", c.Schedule.MarketClose); err != nil {
		return fmt.Errorf("schedule.market_close must be HH:MM: %w", err)
	}
	if _, err := parseDuration(c.Schedule.ReconcileInterval); err != nil {
		return fmt.Errorf("schedule.reconcile_interval invalid: %w", err)
	}

	// Storage validation
	switch c.Storage.Backend {
	case BackendJSON:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the json backend")
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
		if c.Storage.MaxConns < 0 || c.Storage.MinConns < 0 {
			return fmt.Errorf("storage pool sizes must be >= 0")
		}
		if c.Storage.MaxConns > 0 && c.Storage.MinConns > c.Storage.MaxConns {
			return fmt.Errorf("storage.min_conns (%d) must be <= storage.max_conns (%d)",
				c.Storage.MinConns, c.Storage.MaxConns)
		}
	default:
		return fmt.Errorf("storage.backend must be 'json' or 'postgres'")
	}

	// Pricing validation
	switch c.Pricing.Provider {
	case "", ProviderMock:
	case ProviderTradier:
		if c.Pricing.APIKey == "" {
			return fmt.Errorf("pricing.api_key is required for the tradier provider")
		}
	default:
		return fmt.Errorf("pricing.provider %q is not supported", c.Pricing.Provider)
	}
	if _, err := parseDuration(c.Pricing.Timeout); err != nil {
		return fmt.Errorf("pricing.timeout invalid: %w", err)
	}
	if c.Pricing.RequestsPerMinute < 0 {
		return fmt.Errorf("pricing.requests_per_minute must be >= 0")
	}
	if c.Pricing.MaxConcurrency < 1 {
		return fmt.Errorf("pricing.max_concurrency must be > 0")
	}
	if c.Pricing.Retry.MaxRetries < 0 {
		return fmt.Errorf("pricing.retry.max_retries must be >= 0")
	}
	for name, v := range map[string]string{
		"pricing.retry.initial_backoff":    c.Pricing.Retry.InitialBackoff,
		"pricing.retry.max_backoff":        c.Pricing.Retry.MaxBackoff,
		"pricing.circuit_breaker.interval": c.Pricing.CircuitBreaker.Interval,
		"pricing.circuit_breaker.timeout":  c.Pricing.CircuitBreaker.Timeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s invalid: %w", name, err)
		}
	}
	if r := c.Pricing.CircuitBreaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("pricing.circuit_breaker.failure_ratio must be in (0,1]")
	}

	return nil
}

// parseDuration accepts "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := parseDuration(s)
	if err != nil || d == 0 {
		return fallback
	}
	return d
}

// Calendar builds the exchange calendar.
func (c *Config) Calendar() (*market.Calendar, error) {
	return market.NewCalendar(c.Schedule.Timezone, c.Schedule.MarketClose)
}

// GetReconcileInterval returns the sweep interval; zero disables the sweep.
func (c *Config) GetReconcileInterval() time.Duration {
	d, err := parseDuration(c.Schedule.ReconcileInterval)
	if err != nil {
		return 15 * time.Minute // default
	}
	return d
}

// PostgresConfig maps the storage section onto a pool config.
func (c *Config) PostgresConfig() postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:      c.Storage.DSN,
		MaxConns: c.Storage.MaxConns,
		MinConns: c.Storage.MinConns,
	}
}

// TradierConfig maps the pricing section onto the Tradier feed.
func (c *Config) TradierConfig() pricing.TradierConfig {
	return pricing.TradierConfig{
		APIKey:            c.Pricing.APIKey,
		BaseURL:           c.Pricing.APIEndpoint,
		Sandbox:           c.Pricing.Sandbox,
		Timeout:           durationOr(c.Pricing.Timeout, 10*time.Second),
		RequestsPerMinute: c.Pricing.RequestsPerMinute,
	}
}

// RetryConfig returns the quote lookup retry policy.
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig
	cfg.MaxRetries = c.Pricing.Retry.MaxRetries
	cfg.InitialBackoff = durationOr(c.Pricing.Retry.InitialBackoff, cfg.InitialBackoff)
	cfg.MaxBackoff = durationOr(c.Pricing.Retry.MaxBackoff, cfg.MaxBackoff)
	return cfg
}

// BreakerSettings returns the price feed circuit breaker settings.
func (c *Config) BreakerSettings() pricing.BreakerSettings {
	cb := c.Pricing.CircuitBreaker
	def := pricing.DefaultBreakerSettings
	return pricing.BreakerSettings{
		MaxRequests:  cb.MaxRequests,
		Interval:     durationOr(cb.Interval, def.Interval),
		Timeout:      durationOr(cb.Timeout, def.Timeout),
		MinRequests:  cb.MinRequests,
		FailureRatio: cb.FailureRatio,
	}
}
