package ports

import (
	"context"

	"mexcGuardBot/internal/domain"
)

// SignalExtractor extracts a trade signal from text the regex parser could not read.
// Implementations return ErrNoSignal when the text holds no trade.
type SignalExtractor interface {
	Extract(ctx context.Context, text string) (domain.TradeSignal, error)
}
