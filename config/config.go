package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mexcGuardBot/internal/adapters/logger"
	"mexcGuardBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// MEXC API
	APIKey             string
	SecretKey          string
	BaseURL            string
	RecvWindowMS       int64
	HTTPTimeout        time.Duration
	RetryCount         int     // Retries for GET requests
	RateLimitPerSecond float64 // 0 disables client side limiting
	QuoteAsset         string

	// Per-user defaults
	DefaultQuoteUSDT   float64
	DefaultMaxSlippage float64 // e.g. 0.004 for 0.4%
	DefaultTPMode      domain.GuardMode
	DefaultSLMode      domain.GuardMode

	// Guard
	GuardMaxRuntime   time.Duration
	GuardPollInterval time.Duration

	// Journal
	DBDriver string // sqlite3 or postgres
	DBPath   string // sqlite3 file
	DBDSN    string // postgres connection string

	// HTTP API
	HTTPAddr        string
	HTTPRateLimit   float64 // Requests per second accepted by the API, 0 disables
	HTTPAuthSecret  string  // HS256 key for API tokens; may only be empty on loopback
	ShutdownTimeout time.Duration

	// LLM extraction fallback, disabled when OpenAIAPIKey is empty
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// Logging
	LogLevel logger.LogLevel
}

// Credentials returns the exchange key pair. It may be incomplete; signed calls
// then fail with ports.ErrMissingCredentials.
func (c *Config) Credentials() domain.Credentials {
	return domain.Credentials{APIKey: c.APIKey, APISecret: c.SecretKey}
}

// UserDefaults returns the config every new user starts with.
func (c *Config) UserDefaults() domain.UserConfig {
	return domain.UserConfig{
		QuoteAmount: c.DefaultQuoteUSDT,
		MaxSlippage: c.DefaultMaxSlippage,
		TPMode:      c.DefaultTPMode,
		SLMode:      c.DefaultSLMode,
	}
}

// LoadConfig loads configuration from environment variables (.env file). When
// CONFIG_FILE points to a YAML file of KEY: value pairs, those values act as defaults
// and environment variables still win.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	return load(src)
}

func load(src *source) (*Config, error) {
	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// MEXC API. Missing keys are allowed: parsing and the API still work without them.
	cfg.APIKey = src.getEnv("MEXC_API_KEY", "")
	cfg.SecretKey = src.getEnv("MEXC_API_SECRET", "")
	cfg.BaseURL = strings.TrimRight(src.getEnv("MEXC_BASE_URL", "https://api.mexc.com"), "/")
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		errs = append(errs, "MEXC_BASE_URL must be an http(s) URL")
	}

	recvWindow, err := src.getEnvAsIntRequired("MEXC_RECV_WINDOW_MS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MEXC_RECV_WINDOW_MS: %v", err))
	} else if recvWindow < 0 || recvWindow > 60000 {
		errs = append(errs, "MEXC_RECV_WINDOW_MS must be between 0 and 60000")
	}
	cfg.RecvWindowMS = int64(recvWindow)

	timeoutSeconds := src.getEnvAsInt("HTTP_TIMEOUT_SECONDS", 20)
	if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.RetryCount = src.getEnvAsInt("MEXC_RETRY_COUNT", 2)
	if cfg.RetryCount < 0 {
		errs = append(errs, "MEXC_RETRY_COUNT cannot be negative")
	}

	cfg.RateLimitPerSecond, err = src.getEnvAsFloatRequired("RATE_LIMIT_PER_SECOND", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RATE_LIMIT_PER_SECOND: %v", err))
	} else if cfg.RateLimitPerSecond < 0 {
		errs = append(errs, "RATE_LIMIT_PER_SECOND cannot be negative")
	}

	cfg.QuoteAsset = strings.ToUpper(src.getEnv("QUOTE_ASSET", "USDT"))

	// Per-user defaults
	cfg.DefaultQuoteUSDT, err = src.getEnvAsFloatRequired("DEFAULT_QUOTE_USDT", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_QUOTE_USDT: %v", err))
	} else if cfg.DefaultQuoteUSDT <= 0 {
		errs = append(errs, "DEFAULT_QUOTE_USDT must be positive")
	}

	cfg.DefaultMaxSlippage, err = src.getEnvAsFloatRequired("DEFAULT_MAX_SLIPPAGE", 0.004)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_MAX_SLIPPAGE: %v", err))
	} else if cfg.DefaultMaxSlippage < 0 || cfg.DefaultMaxSlippage >= 1.0 {
		errs = append(errs, "DEFAULT_MAX_SLIPPAGE must be in [0.0, 1.0)")
	}

	var ok bool
	if cfg.DefaultTPMode, ok = domain.ParseGuardMode(src.getEnv("DEFAULT_TP_MODE", "guarded")); !ok {
		errs = append(errs, "DEFAULT_TP_MODE must be guarded or none")
	}
	if cfg.DefaultSLMode, ok = domain.ParseGuardMode(src.getEnv("DEFAULT_SL_MODE", "guarded")); !ok {
		errs = append(errs, "DEFAULT_SL_MODE must be guarded or none")
	}

	// Guard
	maxRuntimeMinutes := src.getEnvAsInt("GUARD_MAX_RUNTIME_MINUTES", 120)
	if maxRuntimeMinutes <= 0 {
		errs = append(errs, "GUARD_MAX_RUNTIME_MINUTES must be positive")
	}
	cfg.GuardMaxRuntime = time.Duration(maxRuntimeMinutes) * time.Minute

	pollSeconds, err := src.getEnvAsFloatRequired("GUARD_POLL_SECONDS", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid GUARD_POLL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "GUARD_POLL_SECONDS must be positive")
	}
	cfg.GuardPollInterval = time.Duration(pollSeconds * float64(time.Second))

	// Journal
	cfg.DBDriver = strings.ToLower(src.getEnv("DB_DRIVER", "sqlite3"))
	cfg.DBPath = src.getEnv("DB_PATH", "./data/mexc_guard_bot.db")
	cfg.DBDSN = src.getEnv("DB_DSN", "")
	switch cfg.DBDriver {
	case "sqlite3":
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set for sqlite3")
		}
	case "postgres":
		if cfg.DBDSN == "" {
			errs = append(errs, "DB_DSN must be set for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be sqlite3 or postgres, got %q", cfg.DBDriver))
	}

	// HTTP API
	cfg.HTTPAddr = src.getEnv("HTTP_ADDR", "127.0.0.1:8080")
	cfg.HTTPAuthSecret = src.getEnv("HTTP_AUTH_SECRET", "")
	if cfg.HTTPAuthSecret == "" && !isLoopbackAddr(cfg.HTTPAddr) {
		errs = append(errs, fmt.Sprintf("HTTP_AUTH_SECRET must be set when HTTP_ADDR %q is not a loopback address", cfg.HTTPAddr))
	} else if cfg.HTTPAuthSecret != "" && len(cfg.HTTPAuthSecret) < minAuthSecretLen {
		errs = append(errs, fmt.Sprintf("HTTP_AUTH_SECRET must be at least %d characters", minAuthSecretLen))
	}
	cfg.HTTPRateLimit, err = src.getEnvAsFloatRequired("HTTP_RATE_LIMIT_PER_SECOND", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_RATE_LIMIT_PER_SECOND: %v", err))
	} else if cfg.HTTPRateLimit < 0 {
		errs = append(errs, "HTTP_RATE_LIMIT_PER_SECOND cannot be negative")
	}
	shutdownSeconds := src.getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10)
	if shutdownSeconds <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT_SECONDS must be positive")
	}
	cfg.ShutdownTimeout = time.Duration(shutdownSeconds) * time.Second

	// LLM
	cfg.OpenAIAPIKey = src.getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIModel = src.getEnv("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = src.getEnv("OPENAI_BASE_URL", "")

	// Logging
	cfg.LogLevel = logger.ParseLevel(src.getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

const minAuthSecretLen = 32

// isLoopbackAddr reports whether a listen address only accepts local connections.
// An empty host (":8080") listens on every interface.
func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// --- Env Var Helpers ---

// source resolves keys from the environment first, then from the optional YAML file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	src := &source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE %s: %w", path, err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		src.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

func (s *source) lookup(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return s.file[key]
}

func (s *source) getEnv(key, defaultValue string) string {
	value := s.lookup(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (s *source) getEnvAsInt(key string, defaultValue int) int {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func (s *source) getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func (s *source) getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := s.lookup(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
