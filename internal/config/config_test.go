package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// The example file references env vars; provide the one the tradier provider requires.
	t.Setenv("TRADIER_API_KEY", "example-key")
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected config to load successfully from example file, got error: %v", err)
	}
	assert.Equal(t, "example-key", cfg.Pricing.APIKey)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, 15*time.Minute, cfg.GetReconcileInterval())
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Environment.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "America/New_York", cfg.Schedule.Timezone)
	assert.Equal(t, "16:00", cfg.Schedule.MarketClose)
	assert.Equal(t, BackendJSON, cfg.Storage.Backend)
	assert.Equal(t, "data/ledger.json", cfg.Storage.Path)
	assert.Equal(t, 4, cfg.Pricing.MaxConcurrency)
	assert.Equal(t, Default(), cfg)

	bs := cfg.BreakerSettings()
	assert.Equal(t, uint32(3), bs.MaxRequests)
	assert.Equal(t, 60*time.Second, bs.Interval)
	assert.Equal(t, 30*time.Second, bs.Timeout)
	assert.InDelta(t, 0.6, bs.FailureRatio, 1e-9)

	rc := cfg.RetryConfig()
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, time.Second, rc.InitialBackoff)

	cal, err := cfg.Calendar()
	require.NoError(t, err)
	assert.NotNil(t, cal.Location())
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("storage:\n  backend: json\n  bogus: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("LEDGER_TEST_DSN", "postgres://u:p@db:5432/ledger")
	cfg, err := Parse([]byte("storage:\n  backend: postgres\n  dsn: ${LEDGER_TEST_DSN}\n  max_conns: 5\n"))
	require.NoError(t, err)
	pg := cfg.PostgresConfig()
	assert.Equal(t, "postgres://u:p@db:5432/ledger", pg.DSN)
	assert.Equal(t, 5, pg.MaxConns)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad log level", "environment:\n  log_level: loud\n", "log_level"},
		{"bad log format", "environment:\n  log_format: xml\n", "log_format"},
		{"bad market close", "schedule:\n  market_close: \"4pm\"\n", "market_close"},
		{"bad interval", "schedule:\n  reconcile_interval: soon\n", "reconcile_interval"},
		{"unknown backend", "storage:\n  backend: sqlite\n", "storage.backend"},
		{"postgres without dsn", "storage:\n  backend: postgres\n", "storage.dsn"},
		{"pool sizes inverted", "storage:\n  backend: postgres\n  dsn: x\n  max_conns: 2\n  min_conns: 3\n", "min_conns"},
		{"tradier without key", "pricing:\n  provider: tradier\n", "api_key"},
		{"unknown provider", "pricing:\n  provider: yahoo\n", "not supported"},
		{"bad timeout", "pricing:\n  timeout: fast\n", "pricing.timeout"},
		{"bad backoff", "pricing:\n  retry:\n    max_backoff: later\n", "max_backoff"},
		{"failure ratio too high", "pricing:\n  circuit_breaker:\n    failure_ratio: 1.5\n", "failure_ratio"},
		{"negative concurrency", "pricing:\n  max_concurrency: -1\n", "max_concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetReconcileInterval(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"0", 0},
		{"5m", 5 * time.Minute},
		{"garbage", 15 * time.Minute},
	}
	for _, tt := range tests {
		c := &Config{Schedule: ScheduleConfig{ReconcileInterval: tt.value}}
		assert.Equal(t, tt.want, c.GetReconcileInterval(), tt.value)
	}
}
