package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// GuardMode selects whether a take-profit or stop-loss leg is watched by the bot.
type GuardMode string

const (
	GuardModeGuarded GuardMode = "guarded"
	GuardModeNone    GuardMode = "none"

	// legacyGuardMode is the value older deployments put in DEFAULT_TP_MODE/DEFAULT_SL_MODE.
	legacyGuardMode = "bot_guard"
)

// ParseGuardMode normalizes a user supplied mode. ok is false for unknown values.
func ParseGuardMode(s string) (mode GuardMode, ok bool) {
	switch s {
	case string(GuardModeGuarded), legacyGuardMode:
		return GuardModeGuarded, true
	case string(GuardModeNone):
		return GuardModeNone, true
	default:
		return "", false
	}
}

// Enabled reports whether the leg is guarded.
func (m GuardMode) Enabled() bool {
	return m == GuardModeGuarded
}

// CloseReason indicates why a guard sold the position.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonStopLoss   CloseReason = "SL"
)
