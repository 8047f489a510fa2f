// Package userconfig keeps per-user trading parameters in memory for the lifetime of
// the process. Nothing is persisted.
package userconfig

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

// Keys accepted by Update.
const (
	KeyQuoteAmount = "quote_usdt"
	KeyMaxSlippage = "max_slippage"
	KeyTPMode      = "tp_mode"
	KeySLMode      = "sl_mode"
)

// Store owns the user ID → config mapping.
type Store struct {
	mu       sync.RWMutex
	configs  map[int64]*domain.UserConfig
	defaults domain.UserConfig
	logger   ports.Logger
}

// NewStore creates a store whose new entries start from defaults.
func NewStore(defaults domain.UserConfig, logger ports.Logger) *Store {
	return &Store{
		configs:  make(map[int64]*domain.UserConfig),
		defaults: defaults,
		logger:   logger,
	}
}

// Get returns a copy of the user's config, creating it from defaults on first access.
func (s *Store) Get(userID int64) domain.UserConfig {
	s.mu.RLock()
	cfg, ok := s.configs[userID]
	s.mu.RUnlock()
	if ok {
		return *cfg
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getLocked(userID)
}

func (s *Store) getLocked(userID int64) *domain.UserConfig {
	cfg, ok := s.configs[userID]
	if !ok {
		c := s.defaults
		cfg = &c
		s.configs[userID] = cfg
	}
	return cfg
}

// Update sets one key. Unknown keys and unparsable values are ignored and the prior
// value is kept; the return value reports whether anything changed.
func (s *Store) Update(userID int64, key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.getLocked(userID)
	if err := apply(cfg, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
		s.logger.Debug(context.Background(), "Config update ignored", map[string]interface{}{
			"userID": userID, "error": err.Error(),
		})
		return false
	}
	return true
}

// Apply processes "key=value" tokens as sent to the config endpoint. It returns the
// resulting config and the tokens that produced no change.
func (s *Store) Apply(userID int64, args []string) (domain.UserConfig, []string) {
	var ignored []string
	for _, a := range args {
		k, v, found := strings.Cut(a, "=")
		if !found || !s.Update(userID, k, v) {
			ignored = append(ignored, a)
		}
	}
	return s.Get(userID), ignored
}

// Len returns the number of users with a config.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// apply sets key on cfg. cfg is left untouched when an error wrapping
// ports.ErrInvalidConfig is returned.
func apply(cfg *domain.UserConfig, key, value string) error {
	invalid := func() error {
		return fmt.Errorf("%w: %s=%q", ports.ErrInvalidConfig, key, value)
	}
	switch key {
	case KeyQuoteAmount:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return invalid()
		}
		cfg.QuoteAmount = v
	case KeyMaxSlippage:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 || v >= 1 || math.IsNaN(v) {
			return invalid()
		}
		cfg.MaxSlippage = v
	case KeyTPMode:
		m, ok := domain.ParseGuardMode(value)
		if !ok {
			return invalid()
		}
		cfg.TPMode = m
	case KeySLMode:
		m, ok := domain.ParseGuardMode(value)
		if !ok {
			return invalid()
		}
		cfg.SLMode = m
	default:
		return fmt.Errorf("%w: unknown key %q", ports.ErrInvalidConfig, key)
	}
	return nil
}

// Format renders the config as ordered "key=value" lines.
func Format(cfg domain.UserConfig) []string {
	return []string{
		KeyQuoteAmount + "=" + strconv.FormatFloat(cfg.QuoteAmount, 'f', -1, 64),
		KeyMaxSlippage + "=" + strconv.FormatFloat(cfg.MaxSlippage, 'f', -1, 64),
		KeyTPMode + "=" + string(cfg.TPMode),
		KeySLMode + "=" + string(cfg.SLMode),
	}
}
