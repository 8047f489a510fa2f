// Package signal extracts trade signals from free-text alerts.
package signal

import (
	"regexp"
	"strconv"
	"strings"

	"mexcGuardBot/internal/domain"
)

// alertPattern matches the alert layout:
//
//	$PLUME
//	Position: Long
//	Pair: PLUME/USDT
//	Entry Price: 0.1012
//	Take Profit: 0.1100
//	Stop Loss: 0.0950
var alertPattern = regexp.MustCompile(`(?is)\$?(?P<coin>[A-Z0-9]+)\s*\n?.*?Position:\s*(?P<side>Long|Buy|Short|Sell)` +
	`.*?Pair:\s*(?P<pair>[A-Z0-9/:-]+)` +
	`.*?Entry Price:\s*(?P<entry>[0-9]*\.?[0-9]+)` +
	`.*?Take Profit:\s*(?P<tp>[0-9]*\.?[0-9]+)` +
	`.*?Stop Loss:\s*(?P<sl>[0-9]*\.?[0-9]+)`)

// cashtag picks the "$COIN" header when the alert has one, since the coin group
// otherwise binds to the first word of the text.
var cashtag = regexp.MustCompile(`\$([A-Za-z0-9]+)`)

var pairSeparators = strings.NewReplacer(":", "/", "-", "/")

// Parse returns the signal in text. ok is false when the text is not a recognized alert.
func Parse(text string) (sig domain.TradeSignal, ok bool) {
	loc := alertPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return domain.TradeSignal{}, false
	}
	group := func(name string) string {
		i := 2 * alertPattern.SubexpIndex(name)
		return text[loc[i]:loc[i+1]]
	}

	coin := strings.ToUpper(group("coin"))
	header := text[:loc[2*alertPattern.SubexpIndex("side")]]
	if tag := cashtag.FindStringSubmatch(header); tag != nil {
		coin = strings.ToUpper(tag[1])
	}

	pair, symbol := NormalizePair(group("pair"))

	entry, err1 := strconv.ParseFloat(group("entry"), 64)
	tp, err2 := strconv.ParseFloat(group("tp"), 64)
	sl, err3 := strconv.ParseFloat(group("sl"), 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return domain.TradeSignal{}, false
	}

	sig, err := domain.NewTradeSignal(coin, NormalizeSide(group("side")), pair, symbol, entry, tp, sl)
	if err != nil {
		return domain.TradeSignal{}, false
	}
	return sig, true
}

// NormalizePair uppercases pair, turns ":" and "-" into "/" and returns it together
// with the exchange symbol ("plume-usdt" → "PLUME/USDT", "PLUMEUSDT").
func NormalizePair(raw string) (pair, symbol string) {
	pair = pairSeparators.Replace(strings.ToUpper(strings.TrimSpace(raw)))
	return pair, strings.ReplaceAll(pair, "/", "")
}

// NormalizeSide maps Long/Buy to BUY and Short/Sell to SELL. Unknown words map to "".
func NormalizeSide(word string) domain.OrderSide {
	switch strings.ToUpper(strings.TrimSpace(word)) {
	case "LONG", "BUY":
		return domain.Buy
	case "SHORT", "SELL":
		return domain.Sell
	default:
		return ""
	}
}
