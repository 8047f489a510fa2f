package domain

import "time"

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	OrderID       string    // Exchange's order ID
	ClientOrderID string    // Client order ID sent with the request
	Symbol        string    // Symbol for the order
	Side          OrderSide // BUY or SELL
	Type          string    // Always MARKET here
	Status        string    // Order status as reported, or NEW when absent
	Quantity      string    // Base quantity sent (sell-all), empty for buy-by-quote
	QuoteAmount   string    // Quote notional sent (buy-by-quote), empty for sells
	Raw           []byte    // Raw exchange response
	Timestamp     time.Time // Time the response was received
}

// OrderRecord is the journal entry written for every order the bot places.
type OrderRecord struct {
	ID          int64
	UserID      int64
	Symbol      string
	Side        OrderSide
	OrderID     string
	Status      string
	Quantity    string
	QuoteAmount string
	Entry       float64 // Alert entry price (buys only)
	TakeProfit  float64
	StopLoss    float64
	Source      string // "signal" or "guard"
	CreatedAt   time.Time
}
