package ports

import (
	"context"

	"mexcGuardBot/internal/domain"
)

// PriceSource returns the last trade price for a symbol.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// ExchangeClient defines the interface for interacting with the spot exchange.
// Signed calls take the credentials explicitly so one client serves many users.
type ExchangeClient interface {
	PriceSource

	// GetBalances returns the free balance of every asset on the account.
	GetBalances(ctx context.Context, creds domain.Credentials) (map[string]float64, error)

	// MarketBuyByQuote places a market buy sized by quote-currency notional.
	MarketBuyByQuote(ctx context.Context, creds domain.Credentials, symbol string, quoteAmount float64) (*domain.OrderResult, error)

	// MarketSellAll sells the entire free balance of the symbol's base asset.
	MarketSellAll(ctx context.Context, creds domain.Credentials, symbol string) (*domain.OrderResult, error)
}
