// Package guard watches the price of a bought symbol and sells the whole position
// once a take-profit or stop-loss level is crossed.
package guard

import (
	"context"
	"fmt"
	"time"

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

const (
	DefaultMaxRuntime   = 2 * time.Hour
	DefaultPollInterval = 2 * time.Second
)

// Config holds everything one guard loop needs.
type Config struct {
	Exchange     ports.ExchangeClient
	Logger       ports.Logger
	Key          domain.GuardKey
	GuardID      string
	Creds        domain.Credentials
	TakeProfit   float64 // 0 leaves the take-profit leg unguarded
	StopLoss     float64 // 0 leaves the stop-loss leg unguarded
	MaxRuntime   time.Duration
	PollInterval time.Duration
	Now          func() time.Time
}

// Monitor runs a single guard loop.
type Monitor struct {
	cfg Config
}

// NewMonitor validates cfg and fills in defaults.
func NewMonitor(cfg Config) (*Monitor, error) {
	if cfg.Exchange == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for guard monitor")
	}
	if cfg.Key.Symbol == "" {
		return nil, fmt.Errorf("guard symbol must not be empty")
	}
	if cfg.TakeProfit < 0 || cfg.StopLoss < 0 {
		return nil, fmt.Errorf("guard levels must not be negative")
	}
	if cfg.TakeProfit == 0 && cfg.StopLoss == 0 {
		return nil, fmt.Errorf("guard for %s has no leg to watch", cfg.Key)
	}
	if cfg.MaxRuntime <= 0 {
		cfg.MaxRuntime = DefaultMaxRuntime
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Monitor{cfg: cfg}, nil
}

// WithID returns a copy of the monitor that reports under the given guard ID.
func (m *Monitor) WithID(guardID string) *Monitor {
	cfg := m.cfg
	cfg.GuardID = guardID
	return &Monitor{cfg: cfg}
}

// Check reports whether price crosses an enabled leg. Take-profit wins when both match.
func (m *Monitor) Check(price float64) (domain.CloseReason, bool) {
	if m.cfg.TakeProfit > 0 && price >= m.cfg.TakeProfit {
		return domain.CloseReasonTakeProfit, true
	}
	if m.cfg.StopLoss > 0 && price <= m.cfg.StopLoss {
		return domain.CloseReasonStopLoss, true
	}
	return "", false
}

// Run polls until the position is sold, ctx is cancelled or the max runtime elapses.
// Price and sell failures are logged and the loop keeps polling.
func (m *Monitor) Run(ctx context.Context) domain.GuardReport {
	op := "GuardMonitor"
	cfg := m.cfg
	fields := map[string]interface{}{
		"guardID": cfg.GuardID, "key": cfg.Key.String(), "tp": cfg.TakeProfit, "sl": cfg.StopLoss,
	}

	report := domain.GuardReport{
		GuardID:    cfg.GuardID,
		Key:        cfg.Key,
		TakeProfit: cfg.TakeProfit,
		StopLoss:   cfg.StopLoss,
		State:      domain.GuardRunning,
		StartedAt:  cfg.Now(),
	}
	deadline := report.StartedAt.Add(cfg.MaxRuntime)
	finish := func(state domain.GuardState) domain.GuardReport {
		report.State = state
		report.EndedAt = cfg.Now()
		cfg.Logger.Info(ctx, op+": guard finished", fields, map[string]interface{}{
			"state": state, "polls": report.Polls, "reason": report.Reason,
		})
		return report
	}

	cfg.Logger.Info(ctx, op+": guard started", fields, map[string]interface{}{"maxRuntime": cfg.MaxRuntime.String()})

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return finish(domain.GuardCancelled)
		}
		if !cfg.Now().Before(deadline) {
			return finish(domain.GuardTimedOut)
		}

		report.Polls++
		price, err := cfg.Exchange.GetPrice(ctx, cfg.Key.Symbol)
		if err != nil {
			cfg.Logger.Warn(ctx, op+": price fetch failed, retrying", fields, map[string]interface{}{"error": err.Error()})
		} else if reason, hit := m.Check(price); hit {
			cfg.Logger.Info(ctx, op+": level crossed, selling position", fields, map[string]interface{}{
				"price": price, "reason": reason,
			})
			order, err := cfg.Exchange.MarketSellAll(ctx, cfg.Creds, cfg.Key.Symbol)
			if err == nil {
				report.Reason = reason
				report.TriggerPrice = price
				report.Order = order
				return finish(domain.GuardTriggered)
			}
			cfg.Logger.Error(ctx, err, op+": sell failed, will retry", fields)
		}

		select {
		case <-ctx.Done():
			return finish(domain.GuardCancelled)
		case <-ticker.C:
		}
	}
}
