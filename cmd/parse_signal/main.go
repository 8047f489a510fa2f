package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"mexcGuardBot/internal/adapters/logger"
	"mexcGuardBot/internal/risk"
	"mexcGuardBot/internal/signal"
)

var (
	price       = flag.Float64("price", 0, "current price to run the slippage check against (0 skips it)")
	maxSlippage = flag.Float64("max-slippage", 0.004, "max allowed deviation from entry")
	logLevel    = flag.String("log-level", "INFO", "log level")
)

// parse_signal reads an alert from stdin (or the file named by the first argument)
// and prints the parsed signal as JSON. It never talks to the exchange.
func main() {
	flag.Parse()
	appLogger := logger.NewStdLogger(logger.ParseLevel(*logLevel))
	ctx := context.Background()

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("Error opening %s: %v", flag.Arg(0), err)
		}
		defer f.Close()
		in = f
	}
	text, err := io.ReadAll(in)
	if err != nil {
		log.Fatalf("Error reading alert: %v", err)
	}

	sig, ok := signal.Parse(string(text))
	if !ok {
		appLogger.Warn(ctx, "No signal recognized")
		os.Exit(2)
	}

	out := map[string]interface{}{
		"coin": sig.Coin, "side": sig.Side, "pair": sig.Pair, "symbol": sig.Symbol,
		"entry": sig.Entry, "take_profit": sig.TakeProfit, "stop_loss": sig.StopLoss,
	}
	if *price > 0 {
		out["deviation"] = risk.Deviation(sig.Entry, *price)
		if err := risk.CheckSlippage(sig.Symbol, sig.Entry, *price, *maxSlippage); err != nil {
			out["slippage_error"] = err.Error()
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Error writing output: %v", err)
	}
	appLogger.Debug(ctx, "Signal parsed", map[string]interface{}{"symbol": sig.Symbol})
}
