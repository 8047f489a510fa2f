package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
	"mexcGuardBot/internal/signal"
)

const systemPrompt = `You extract spot trade signals from chat alerts.
Reply with a single JSON object and nothing else:
{"is_signal": bool, "coin": string, "side": "BUY"|"SELL", "pair": string, "entry": number, "take_profit": number, "stop_loss": number}
Set is_signal to false when the text does not contain a complete trade with entry, take profit and stop loss.
Use the quote asset %s when the alert omits it.`

// Extractor implements ports.SignalExtractor with an OpenAI chat model.
type Extractor struct {
	client     *openai.Client
	model      string
	quoteAsset string
	logger     ports.Logger
}

// Config holds configuration for the OpenAI extractor.
type Config struct {
	APIKey     string
	Model      string // Defaults to gpt-4o-mini
	BaseURL    string // Optional, for proxies and tests
	QuoteAsset string
	Logger     ports.Logger
}

// New creates an Extractor.
func New(cfg Config) (*Extractor, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for LLM extractor")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for LLM extractor")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	quote := strings.ToUpper(cfg.QuoteAsset)
	if quote == "" {
		quote = "USDT"
	}
	return &Extractor{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      model,
		quoteAsset: quote,
		logger:     cfg.Logger,
	}, nil
}

type extraction struct {
	IsSignal   bool    `json:"is_signal"`
	Coin       string  `json:"coin"`
	Side       string  `json:"side"`
	Pair       string  `json:"pair"`
	Entry      float64 `json:"entry"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

// Extract asks the model for a signal. Any answer that does not form a valid
// TradeSignal is reported as ports.ErrNoSignal.
func (e *Extractor) Extract(ctx context.Context, text string) (domain.TradeSignal, error) {
	op := "Extract"
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, e.quoteAsset)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0,
	})
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("%s failed: openai api error: %w", op, err)
	}
	if len(resp.Choices) == 0 {
		return domain.TradeSignal{}, fmt.Errorf("%s failed: no response from openai", op)
	}

	var out extraction
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		e.logger.Debug(ctx, op+": unparseable model answer", map[string]interface{}{"content": content})
		return domain.TradeSignal{}, fmt.Errorf("%s failed: %w: %v", op, ports.ErrNoSignal, err)
	}
	if !out.IsSignal {
		return domain.TradeSignal{}, fmt.Errorf("%s failed: %w", op, ports.ErrNoSignal)
	}

	coin := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(out.Coin), "$"))
	rawPair := out.Pair
	if rawPair == "" && coin != "" {
		rawPair = coin + "/" + e.quoteAsset
	}
	pair, symbol := signal.NormalizePair(rawPair)
	if coin == "" {
		coin = strings.TrimSuffix(symbol, e.quoteAsset)
	}

	sig, err := domain.NewTradeSignal(coin, signal.NormalizeSide(out.Side), pair, symbol, out.Entry, out.TakeProfit, out.StopLoss)
	if err != nil {
		return domain.TradeSignal{}, fmt.Errorf("%s failed: %w: %v", op, ports.ErrNoSignal, err)
	}
	return sig, nil
}
