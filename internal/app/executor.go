package app

import (
	"context"
	"fmt"

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
	"mexcGuardBot/internal/risk"
)

// Executor turns a parsed signal into a market buy after the slippage check.
type Executor struct {
	exchange ports.ExchangeClient
	logger   ports.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(exchange ports.ExchangeClient, logger ports.Logger) (*Executor, error) {
	if exchange == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Executor")
	}
	return &Executor{exchange: exchange, logger: logger}, nil
}

// Execute places a market buy for sig sized by cfg.QuoteAmount. Nothing is sent to the
// exchange when credentials are missing or the side is not BUY, and no order is placed
// when the live price deviates from the entry by more than cfg.MaxSlippage.
func (e *Executor) Execute(ctx context.Context, sig domain.TradeSignal, cfg domain.UserConfig, creds domain.Credentials) (*domain.OrderResult, error) {
	op := "Execute"
	fields := map[string]interface{}{"symbol": sig.Symbol, "side": sig.Side, "entry": sig.Entry}

	if !creds.Complete() {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrMissingCredentials)
	}
	if sig.Side != domain.Buy {
		return nil, fmt.Errorf("%s failed: %w: got %s", op, ports.ErrUnsupportedSide, sig.Side)
	}

	price, err := e.exchange.GetPrice(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed: get price: %w", op, err)
	}
	if err := risk.CheckSlippage(sig.Symbol, sig.Entry, price, cfg.MaxSlippage); err != nil {
		e.logger.Warn(ctx, op+": entry rejected", fields, map[string]interface{}{
			"currentPrice": price, "maxSlippage": cfg.MaxSlippage, "error": err.Error(),
		})
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	e.logger.Info(ctx, op+": placing market buy", fields, map[string]interface{}{
		"currentPrice": price, "quoteAmount": cfg.QuoteAmount,
	})
	order, err := e.exchange.MarketBuyByQuote(ctx, creds, sig.Symbol, cfg.QuoteAmount)
	if err != nil {
		return nil, fmt.Errorf("%s failed: place order: %w", op, err)
	}
	return order, nil
}
