package domain

import (
	"fmt"
	"math"
)

// TradeSignal is a trade intent extracted from alert text. It is immutable once built;
// use NewTradeSignal so the price invariants are checked.
type TradeSignal struct {
	Coin       string    // Coin token from the alert header (e.g. "PLUME")
	Side       OrderSide // Normalized side
	Pair       string    // Normalized pair with "/" separator (e.g. "PLUME/USDT")
	Symbol     string    // Exchange symbol without separators (e.g. "PLUMEUSDT")
	Entry      float64   // Entry price stated by the alert
	TakeProfit float64   // Take-profit price
	StopLoss   float64   // Stop-loss price
}

// NewTradeSignal validates the fields and returns the signal.
func NewTradeSignal(coin string, side OrderSide, pair, symbol string, entry, tp, sl float64) (TradeSignal, error) {
	if side != Buy && side != Sell {
		return TradeSignal{}, fmt.Errorf("invalid side %q", side)
	}
	if symbol == "" {
		return TradeSignal{}, fmt.Errorf("empty symbol")
	}
	for name, v := range map[string]float64{"entry": entry, "take profit": tp, "stop loss": sl} {
		if !isPositiveFinite(v) {
			return TradeSignal{}, fmt.Errorf("%s price must be a positive finite number, got %v", name, v)
		}
	}
	return TradeSignal{
		Coin:       coin,
		Side:       side,
		Pair:       pair,
		Symbol:     symbol,
		Entry:      entry,
		TakeProfit: tp,
		StopLoss:   sl,
	}, nil
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
