package mexcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

const (
	baseURLProduction = "https://api.mexc.com"
	apiKeyHeader      = "X-MEXC-APIKEY"

	pathTickerPrice = "/api/v3/ticker/price"
	pathAccount     = "/api/v3/account"
	pathOrder       = "/api/v3/order"

	defaultQuoteAsset = "USDT"
	amountPrecision   = 8
)

var errMalformed = errors.New("malformed response")

// Client implements the ports.ExchangeClient interface against the MEXC spot v3 REST API.
type Client struct {
	http       *resty.Client
	limiter    *rate.Limiter
	logger     ports.Logger
	quoteAsset string
	recvWindow int64
	now        func() time.Time
}

// Config holds configuration specific to the MEXC client adapter.
type Config struct {
	BaseURL    string        // Defaults to https://api.mexc.com
	QuoteAsset string        // Suffix stripped from symbols to find the base asset, defaults to USDT
	RecvWindow int64         // ms, sent on signed calls when > 0
	Timeout    time.Duration // Per request timeout, defaults to 20s
	RetryCount int           // Retries for GET requests only
	RateLimit  float64       // Requests per second, 0 disables limiting
	Logger     ports.Logger
	Now        func() time.Time // Clock used for the timestamp parameter
}

// New creates a new MEXC client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for MEXC client")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = baseURLProduction
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	quote := strings.ToUpper(cfg.QuoteAsset)
	if quote == "" {
		quote = defaultQuoteAsset
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	httpClient := resty.New().
		SetTransport(&http.Transport{Proxy: http.ProxyFromEnvironment}).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		// Orders are never retried: a lost response does not mean a lost order.
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	cfg.Logger.Info(context.Background(), "MEXC client configured", map[string]interface{}{
		"baseURL": baseURL, "quoteAsset": quote, "rateLimit": cfg.RateLimit,
	})

	return &Client{
		http:       httpClient,
		limiter:    limiter,
		logger:     cfg.Logger,
		quoteAsset: quote,
		recvWindow: cfg.RecvWindow,
		now:        now,
	}, nil
}

// BaseAsset strips the configured quote asset from symbol ("BTCUSDT" → "BTC").
// The bot trades a single quote currency; symbols quoted in anything else are rejected.
func (c *Client) BaseAsset(symbol string) (string, error) {
	symbol = strings.ToUpper(symbol)
	if len(symbol) <= len(c.quoteAsset) || !strings.HasSuffix(symbol, c.quoteAsset) {
		return "", fmt.Errorf("%w: symbol %s is not quoted in %s", ports.ErrInvalidRequest, symbol, c.quoteAsset)
	}
	return strings.TrimSuffix(symbol, c.quoteAsset), nil
}

// GetPrice retrieves the last trade price for a symbol. Unsigned.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetPrice"
	body, err := c.do(ctx, op, http.MethodGet, pathTickerPrice, Params{"symbol": symbol}, nil)
	if err != nil {
		return 0, err
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("%w: ticker: %v", errMalformed, err), op)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil || price <= 0 {
		return 0, c.handleError(ctx, fmt.Errorf("%w: could not parse price '%s' for %s", errMalformed, ticker.Price, symbol), op)
	}
	return price, nil
}

// GetBalances returns the free balance per asset.
func (c *Client) GetBalances(ctx context.Context, creds domain.Credentials) (map[string]float64, error) {
	balances, err := c.freeBalances(ctx, creds)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(balances))
	for asset, free := range balances {
		out[asset] = free.InexactFloat64()
	}
	return out, nil
}

func (c *Client) freeBalances(ctx context.Context, creds domain.Credentials) (map[string]decimal.Decimal, error) {
	op := "GetBalances"
	body, err := c.do(ctx, op, http.MethodGet, pathAccount, Params{}, &creds)
	if err != nil {
		return nil, err
	}

	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: account: %v", errMalformed, err), op)
	}

	balances := make(map[string]decimal.Decimal, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("%w: could not parse balance '%s' for asset %s: %v", errMalformed, b.Free, b.Asset, err), op)
		}
		balances[b.Asset] = free
	}
	return balances, nil
}

// MarketBuyByQuote places a market buy spending quoteAmount of the quote currency.
func (c *Client) MarketBuyByQuote(ctx context.Context, creds domain.Credentials, symbol string, quoteAmount float64) (*domain.OrderResult, error) {
	op := "MarketBuyByQuote"
	if quoteAmount <= 0 {
		return nil, fmt.Errorf("%s failed: %w: quote amount must be positive, got %v", op, ports.ErrInvalidRequest, quoteAmount)
	}
	quote := decimal.NewFromFloat(quoteAmount).StringFixed(amountPrecision)
	params := Params{
		"symbol":        symbol,
		"side":          string(binance.SideTypeBuy),
		"type":          string(binance.OrderTypeMarket),
		"quoteOrderQty": quote,
	}
	res, err := c.placeOrder(ctx, op, creds, params)
	if err != nil {
		return nil, err
	}
	res.QuoteAmount = quote
	return res, nil
}

// MarketSellAll sells the whole free balance of the symbol's base asset.
func (c *Client) MarketSellAll(ctx context.Context, creds domain.Credentials, symbol string) (*domain.OrderResult, error) {
	op := "MarketSellAll"
	base, err := c.BaseAsset(symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	balances, err := c.freeBalances(ctx, creds)
	if err != nil {
		return nil, err
	}

	free := balances[base]
	qty := free.Truncate(amountPrecision)
	if !qty.IsPositive() {
		return nil, fmt.Errorf("%s failed: %w", op, &ports.InsufficientBalanceError{Asset: base, Free: free.String()})
	}

	quantity := qty.StringFixed(amountPrecision)
	params := Params{
		"symbol":   symbol,
		"side":     string(binance.SideTypeSell),
		"type":     string(binance.OrderTypeMarket),
		"quantity": quantity,
	}
	res, err := c.placeOrder(ctx, op, creds, params)
	if err != nil {
		return nil, err
	}
	res.Quantity = quantity
	return res, nil
}

func (c *Client) placeOrder(ctx context.Context, op string, creds domain.Credentials, params Params) (*domain.OrderResult, error) {
	clientID := strings.ReplaceAll(uuid.NewString(), "-", "")
	params["newClientOrderId"] = clientID

	body, err := c.do(ctx, op, http.MethodPost, pathOrder, params, &creds)
	if err != nil {
		return nil, err
	}

	// MEXC echoes the Binance order shape; orderId may be a string, so it stays raw.
	var resp struct {
		Symbol       string                  `json:"symbol"`
		OrderID      json.RawMessage         `json:"orderId"`
		Side         binance.SideType        `json:"side"`
		Type         binance.OrderType       `json:"type"`
		Status       binance.OrderStatusType `json:"status"`
		TransactTime int64                   `json:"transactTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: order: %v", errMalformed, err), op)
	}
	side, orderType := binance.SideType(params["side"]), binance.OrderType(params["type"])
	if (resp.Side != "" && resp.Side != side) || (resp.Type != "" && resp.Type != orderType) {
		return nil, c.handleError(ctx, fmt.Errorf("%w: order echoed %s %s, sent %s %s", errMalformed, resp.Side, resp.Type, side, orderType), op)
	}
	// The order endpoint answers before matching, so a missing status means NEW.
	status := resp.Status
	if status == "" {
		status = binance.OrderStatusTypeNew
	}
	ts := c.now()
	if resp.TransactTime > 0 {
		ts = time.UnixMilli(resp.TransactTime)
	}

	res := &domain.OrderResult{
		OrderID:       strings.Trim(string(resp.OrderID), `"`),
		ClientOrderID: clientID,
		Symbol:        params["symbol"],
		Side:          domain.OrderSide(side),
		Type:          string(orderType),
		Status:        string(status),
		Raw:           body,
		Timestamp:     ts,
	}
	c.logger.Info(ctx, op+": order accepted", map[string]interface{}{
		"symbol": res.Symbol, "side": res.Side, "orderID": res.OrderID, "status": res.Status,
	})
	return res, nil
}

// do performs the request. Signed requests get timestamp (and recvWindow) injected, then
// the canonical query string is signed and sent verbatim with the signature appended.
func (c *Client) do(ctx context.Context, op, method, path string, params Params, creds *domain.Credentials) ([]byte, error) {
	if creds != nil && !creds.Complete() {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrMissingCredentials)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	req := c.http.R().SetContext(ctx)
	query := params
	if creds != nil {
		query = make(Params, len(params)+2)
		for k, v := range params {
			query[k] = v
		}
		query["timestamp"] = strconv.FormatInt(c.now().UnixMilli(), 10)
		if c.recvWindow > 0 {
			query["recvWindow"] = strconv.FormatInt(c.recvWindow, 10)
		}
		req.SetHeader(apiKeyHeader, creds.APIKey)
	}

	target := path
	if canonical := Canonical(query); canonical != "" {
		if creds != nil {
			canonical += "&signature=" + Sign(creds.APISecret, canonical)
		}
		target += "?" + canonical
	}

	c.logger.Debug(ctx, op+": sending request", map[string]interface{}{"method": method, "path": path, "signed": creds != nil})
	resp, err := req.Execute(method, target)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	body := resp.Body()
	if err := checkStatus(resp.StatusCode(), body); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return body, nil
}

// checkStatus reports an *ports.ExchangeError when the body carries a non-zero "code"
// or the HTTP status is an error without one.
func checkStatus(status int, body []byte) error {
	var envelope struct {
		Code json.RawMessage `json:"code"`
		Msg  string          `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Code) > 0 && string(envelope.Code) != "null" {
		code, ok := parseCode(envelope.Code)
		if !ok || code != 0 {
			return &ports.ExchangeError{
				APIError:   &common.APIError{Code: code, Message: envelope.Msg},
				HTTPStatus: status,
				Payload:    string(body),
			}
		}
	}
	if status >= http.StatusBadRequest {
		return &ports.ExchangeError{HTTPStatus: status, Payload: string(body)}
	}
	return nil
}

func parseCode(raw json.RawMessage) (int64, bool) {
	s := strings.Trim(string(raw), `"`)
	code, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}

// handleError classifies an error into the ports taxonomy and logs it.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation}

	var exErr *ports.ExchangeError
	if errors.As(err, &exErr) {
		if exErr.APIError != nil {
			fields["apiErrorCode"] = exErr.Code
			fields["apiErrorMessage"] = exErr.Message
		}
		fields["httpStatus"] = exErr.HTTPStatus
		c.logger.Error(ctx, err, operation+" failed with API error", fields)
		return fmt.Errorf("%s failed: %w", operation, err)
	}

	// Anything that is not a malformed payload, including context errors, is transport level.
	sentinel := ports.ErrNetwork
	if errors.Is(err, errMalformed) {
		sentinel = ports.ErrExchange
	}
	finalErr := fmt.Errorf("%s failed: %w: %w", operation, sentinel, err)
	c.logger.Error(ctx, err, operation+" failed", fields)
	return finalErr
}
