package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mexcGuardBot/internal/adapters/logger"
	"mexcGuardBot/internal/domain"
)

var managedKeys = []string{
	"MEXC_API_KEY", "MEXC_API_SECRET", "MEXC_BASE_URL", "MEXC_RECV_WINDOW_MS", "HTTP_TIMEOUT_SECONDS",
	"MEXC_RETRY_COUNT", "RATE_LIMIT_PER_SECOND", "QUOTE_ASSET", "DEFAULT_QUOTE_USDT", "DEFAULT_MAX_SLIPPAGE",
	"DEFAULT_TP_MODE", "DEFAULT_SL_MODE", "GUARD_MAX_RUNTIME_MINUTES", "GUARD_POLL_SECONDS", "DB_DRIVER",
	"DB_PATH", "DB_DSN", "HTTP_ADDR", "HTTP_RATE_LIMIT_PER_SECOND", "HTTP_AUTH_SECRET", "SHUTDOWN_TIMEOUT_SECONDS", "OPENAI_API_KEY", "OPENAI_MODEL",
	"OPENAI_BASE_URL", "LOG_LEVEL", "CONFIG_FILE",
}

// clearEnv blanks every key the loader reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := load(&source{file: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, "https://api.mexc.com", cfg.BaseURL)
	assert.Equal(t, "USDT", cfg.QuoteAsset)
	assert.Equal(t, 20.0, cfg.DefaultQuoteUSDT)
	assert.Equal(t, 0.004, cfg.DefaultMaxSlippage)
	assert.Equal(t, domain.GuardModeGuarded, cfg.DefaultTPMode)
	assert.Equal(t, domain.GuardModeGuarded, cfg.DefaultSLMode)
	assert.Equal(t, 2*time.Hour, cfg.GuardMaxRuntime)
	assert.Equal(t, 2*time.Second, cfg.GuardPollInterval)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.HTTPAuthSecret, "loopback needs no secret")
	assert.Zero(t, cfg.HTTPRateLimit)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Credentials().Complete(), "missing keys are not a load error")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEXC_API_KEY", "key")
	t.Setenv("MEXC_API_SECRET", "secret")
	t.Setenv("DEFAULT_QUOTE_USDT", "50")
	t.Setenv("DEFAULT_TP_MODE", "none")
	t.Setenv("DEFAULT_SL_MODE", "bot_guard")
	t.Setenv("GUARD_POLL_SECONDS", "0.5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HTTP_RATE_LIMIT_PER_SECOND", "5")

	cfg, err := load(&source{file: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, domain.Credentials{APIKey: "key", APISecret: "secret"}, cfg.Credentials())
	defaults := cfg.UserDefaults()
	assert.Equal(t, 50.0, defaults.QuoteAmount)
	assert.Equal(t, domain.GuardModeNone, defaults.TPMode)
	assert.Equal(t, domain.GuardModeGuarded, defaults.SLMode)
	assert.Equal(t, 500*time.Millisecond, cfg.GuardPollInterval)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5.0, cfg.HTTPRateLimit)
}

func TestLoad_ValidationErrorsAreCollected(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFAULT_QUOTE_USDT", "-1")
	t.Setenv("DEFAULT_MAX_SLIPPAGE", "1")
	t.Setenv("DEFAULT_TP_MODE", "sometimes")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := load(&source{file: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_QUOTE_USDT must be positive")
	assert.Contains(t, err.Error(), "DEFAULT_MAX_SLIPPAGE")
	assert.Contains(t, err.Error(), "DEFAULT_TP_MODE")
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestLoad_PublicAddressRequiresAuthSecret(t *testing.T) {
	secret := strings.Repeat("s", minAuthSecretLen)
	tests := []struct {
		name    string
		addr    string
		secret  string
		wantErr string
	}{
		{name: "all interfaces without secret", addr: ":8080", wantErr: "HTTP_AUTH_SECRET must be set"},
		{name: "public ip without secret", addr: "10.0.0.5:8080", wantErr: "HTTP_AUTH_SECRET must be set"},
		{name: "all interfaces with secret", addr: "0.0.0.0:8080", secret: secret},
		{name: "ipv4 loopback", addr: "127.0.0.1:9000"},
		{name: "ipv6 loopback", addr: "[::1]:9000"},
		{name: "localhost", addr: "localhost:9000"},
		{name: "short secret", addr: ":8080", secret: "short", wantErr: "at least"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("HTTP_ADDR", tt.addr)
			t.Setenv("HTTP_AUTH_SECRET", tt.secret)

			cfg, err := load(&source{file: map[string]string{}})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.secret, cfg.HTTPAuthSecret)
		})
	}
}

func TestLoad_PostgresNeedsDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_DRIVER", "postgres")

	_, err := load(&source{file: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}

func TestLoadConfig_YAMLFileWithEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("DEFAULT_QUOTE_USDT: 35\nquote_asset: usdc\nGUARD_MAX_RUNTIME_MINUTES: 30\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("GUARD_MAX_RUNTIME_MINUTES", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 35.0, cfg.DefaultQuoteUSDT)
	assert.Equal(t, "USDC", cfg.QuoteAsset)
	assert.Equal(t, 45*time.Minute, cfg.GuardMaxRuntime, "environment wins over the file")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}
