package domain

// UserConfig holds per-user trading parameters.
type UserConfig struct {
	QuoteAmount float64   // Quote currency spent per trade (e.g. 20 USDT)
	MaxSlippage float64   // Max allowed |current-entry|/entry, 0 <= v < 1
	TPMode      GuardMode // Whether the take-profit leg is guarded
	SLMode      GuardMode // Whether the stop-loss leg is guarded
}

// GuardEnabled reports whether any leg needs a guard.
func (c UserConfig) GuardEnabled() bool {
	return c.TPMode.Enabled() || c.SLMode.Enabled()
}

// Credentials are the exchange API key pair used for signed calls.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Complete reports whether both parts are present.
func (c Credentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// String never prints the secret.
func (c Credentials) String() string {
	if c.APIKey == "" {
		return "Credentials{<empty>}"
	}
	key := c.APIKey
	if len(key) > 4 {
		key = key[:4] + "****"
	}
	return "Credentials{key=" + key + "}"
}
