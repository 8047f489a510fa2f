package risk

import (
	"math"

	"mexcGuardBot/internal/ports"
)

// Deviation returns |current-entry|/entry, the relative distance between the price an
// alert asked for and the price seen at execution time.
func Deviation(entry, current float64) float64 {
	if entry <= 0 {
		return math.Inf(1)
	}
	return math.Abs(current-entry) / entry
}

// CheckSlippage returns a *ports.SlippageError when the deviation exceeds maxSlippage.
// A deviation exactly equal to maxSlippage is accepted.
func CheckSlippage(symbol string, entry, current, maxSlippage float64) error {
	dev := Deviation(entry, current)
	if dev > maxSlippage {
		return &ports.SlippageError{
			Symbol:       symbol,
			Entry:        entry,
			CurrentPrice: current,
			Deviation:    dev,
			MaxSlippage:  maxSlippage,
		}
	}
	return nil
}
