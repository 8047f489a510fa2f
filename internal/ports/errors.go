package ports

import (
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// Input errors, recovered locally by callers
	ErrNoSignal      = errors.New("alert text is not a recognized signal")
	ErrInvalidConfig = errors.New("invalid configuration value")

	// Execution errors
	ErrMissingCredentials  = errors.New("exchange API key/secret not configured")
	ErrUnsupportedSide     = errors.New("only BUY signals are executed")
	ErrInvalidRequest      = errors.New("invalid request parameters or format")
	ErrSlippageExceeded    = errors.New("price deviation exceeds max slippage")
	ErrInsufficientBalance = errors.New("insufficient free balance")

	// Exchange errors
	ErrNetwork  = errors.New("exchange request failed at transport level")
	ErrExchange = errors.New("exchange returned an error status")

	// Storage errors
	ErrNotFound = errors.New("resource not found")
)

// ExchangeError carries the exchange's own error code together with the raw payload.
type ExchangeError struct {
	*common.APIError        // Code and msg as sent by the exchange
	HTTPStatus       int    // HTTP status of the response
	Payload          string // Raw response body
}

func (e *ExchangeError) Error() string {
	if e.APIError == nil {
		return fmt.Sprintf("exchange error: status=%d payload=%s", e.HTTPStatus, e.Payload)
	}
	return fmt.Sprintf("exchange error: code=%d msg=%s status=%d", e.Code, e.Message, e.HTTPStatus)
}

func (e *ExchangeError) Unwrap() error { return ErrExchange }

// SlippageError reports a rejected entry.
type SlippageError struct {
	Symbol       string
	Entry        float64
	CurrentPrice float64
	Deviation    float64
	MaxSlippage  float64
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("%s: current price %.8f deviates %.4f%% from entry %.8f (max %.4f%%)",
		e.Symbol, e.CurrentPrice, e.Deviation*100, e.Entry, e.MaxSlippage*100)
}

func (e *SlippageError) Unwrap() error { return ErrSlippageExceeded }

// InsufficientBalanceError reports a sell-all attempt with nothing to sell.
type InsufficientBalanceError struct {
	Asset string
	Free  string
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("no free %s balance to sell (free=%s)", e.Asset, e.Free)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }
