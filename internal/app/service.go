package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"mexcGuardBot/config"
	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/guard"
	"mexcGuardBot/internal/ports"
	"mexcGuardBot/internal/signal"
	"mexcGuardBot/internal/userconfig"
)

const (
	sourceSignal = "signal"
	sourceGuard  = "guard"

	journalTimeout = 5 * time.Second
)

// AlertOutcome describes what HandleAlert did with one alert.
type AlertOutcome struct {
	Signal     domain.TradeSignal
	Config     domain.UserConfig
	Order      *domain.OrderResult
	Guard      *domain.GuardInfo // nil when no leg is guarded or the guard failed to start
	GuardError string            // Set when the buy succeeded but the guard did not start
}

// TradingService orchestrates alert handling, order execution and guards.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	journal   ports.JournalRepository
	extractor ports.SignalExtractor // Optional LLM fallback
	configs   *userconfig.Store
	executor  *Executor
	guards    *guard.Registry

	// Guards run under baseCtx so they outlive the request that started them.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	stopOnce   sync.Once
}

// NewTradingService creates a new application service instance. extractor may be nil.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	journal ports.JournalRepository,
	extractor ports.SignalExtractor,
) (*TradingService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || journal == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}

	// Validate config values needed by service
	defaults := cfg.UserDefaults()
	if defaults.QuoteAmount <= 0 {
		return nil, fmt.Errorf("%w: DefaultQuoteUSDT must be positive", ports.ErrInvalidConfig)
	}
	if defaults.MaxSlippage < 0 || defaults.MaxSlippage >= 1 {
		return nil, fmt.Errorf("%w: DefaultMaxSlippage must be in [0, 1)", ports.ErrInvalidConfig)
	}

	executor, err := NewExecutor(exchange, logger)
	if err != nil {
		return nil, err
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		journal:    journal,
		extractor:  extractor,
		configs:    userconfig.NewStore(defaults, logger),
		executor:   executor,
		guards:     guard.NewRegistry(logger),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}, nil
}

// Run blocks until ctx is done, then cancels every guard and waits for them
// within the configured shutdown timeout.
func (s *TradingService) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Trading service started", map[string]interface{}{
		"quoteAsset": s.cfg.QuoteAsset, "llmFallback": s.extractor != nil,
	})
	<-ctx.Done()
	s.logger.Info(context.Background(), "Shutdown signal received, stopping guards...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown cancels all guards and waits for them to return or ctx to end.
func (s *TradingService) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.baseCancel()
		err = s.guards.Shutdown(ctx)
	})
	return err
}

// ParseSignal extracts a trade signal from alert text. The regex parser runs first;
// the LLM extractor, when configured, is only asked about text the parser rejects.
func (s *TradingService) ParseSignal(ctx context.Context, text string) (domain.TradeSignal, bool) {
	if sig, ok := signal.Parse(text); ok {
		return sig, true
	}
	if s.extractor == nil || strings.TrimSpace(text) == "" {
		return domain.TradeSignal{}, false
	}

	sig, err := s.extractor.Extract(ctx, text)
	if err != nil {
		if !errors.Is(err, ports.ErrNoSignal) {
			s.logger.Warn(ctx, "ParseSignal: LLM extraction failed", map[string]interface{}{"error": err.Error()})
		}
		return domain.TradeSignal{}, false
	}
	s.logger.Info(ctx, "ParseSignal: signal extracted by LLM fallback", map[string]interface{}{"symbol": sig.Symbol, "side": sig.Side})
	return sig, true
}

// GetOrCreateConfig returns the user's config, creating it from defaults.
func (s *TradingService) GetOrCreateConfig(userID int64) domain.UserConfig {
	return s.configs.Get(userID)
}

// UpdateConfig applies key=value tokens and returns the new config and the ignored tokens.
func (s *TradingService) UpdateConfig(userID int64, args []string) (domain.UserConfig, []string) {
	return s.configs.Apply(userID, args)
}

// ExecuteSignal buys per sig and cfg and journals the order.
func (s *TradingService) ExecuteSignal(ctx context.Context, userID int64, sig domain.TradeSignal, cfg domain.UserConfig, creds domain.Credentials) (*domain.OrderResult, error) {
	order, err := s.executor.Execute(ctx, sig, cfg, creds)
	if err != nil {
		return nil, err
	}
	s.recordOrder(ctx, &domain.OrderRecord{
		UserID:      userID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		OrderID:     order.OrderID,
		Status:      order.Status,
		Quantity:    order.Quantity,
		QuoteAmount: order.QuoteAmount,
		Entry:       sig.Entry,
		TakeProfit:  sig.TakeProfit,
		StopLoss:    sig.StopLoss,
		Source:      sourceSignal,
		CreatedAt:   order.Timestamp,
	})
	return order, nil
}

// StartGuard starts (or replaces) the guard for userID and symbol using the user's
// current TP/SL modes. Legs whose mode is "none" are not watched; when neither leg is
// guarded no guard is started and the returned info is nil.
func (s *TradingService) StartGuard(userID int64, symbol string, tp, sl float64, creds domain.Credentials) (*domain.GuardInfo, error) {
	return s.startGuard(s.configs.Get(userID), userID, symbol, tp, sl, creds)
}

// startGuard guards per ucfg, the config the position was opened with.
func (s *TradingService) startGuard(ucfg domain.UserConfig, userID int64, symbol string, tp, sl float64, creds domain.Credentials) (*domain.GuardInfo, error) {
	op := "StartGuard"
	key := domain.GuardKey{UserID: userID, Symbol: symbol}

	if !ucfg.TPMode.Enabled() {
		tp = 0
	}
	if !ucfg.SLMode.Enabled() {
		sl = 0
	}
	if !ucfg.GuardEnabled() || (tp == 0 && sl == 0) {
		s.logger.Info(s.baseCtx, op+": no leg guarded, skipping", map[string]interface{}{"key": key.String()})
		return nil, nil
	}

	monitor, err := guard.NewMonitor(guard.Config{
		Exchange:     s.exchange,
		Logger:       s.logger,
		Key:          key,
		Creds:        creds,
		TakeProfit:   tp,
		StopLoss:     sl,
		MaxRuntime:   s.cfg.GuardMaxRuntime,
		PollInterval: s.cfg.GuardPollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	h, err := s.guards.Start(s.baseCtx, key, func(ctx context.Context, guardID string) {
		report := monitor.WithID(guardID).Run(ports.WithTraceID(ctx, guardID))
		s.recordGuard(report)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	info := h.Info()
	return &info, nil
}

// HandleAlert runs the full pipeline for one alert: parse, look up config, execute,
// then guard the position.
func (s *TradingService) HandleAlert(ctx context.Context, userID int64, text string, creds domain.Credentials) (*AlertOutcome, error) {
	op := "HandleAlert"
	sig, ok := s.ParseSignal(ctx, text)
	if !ok {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrNoSignal)
	}

	outcome := &AlertOutcome{Signal: sig, Config: s.GetOrCreateConfig(userID)}
	order, err := s.ExecuteSignal(ctx, userID, sig, outcome.Config, creds)
	if err != nil {
		return outcome, err
	}
	outcome.Order = order

	info, err := s.startGuard(outcome.Config, userID, sig.Symbol, sig.TakeProfit, sig.StopLoss, creds)
	if err != nil {
		s.logger.Error(ctx, err, op+": order placed but guard not started", map[string]interface{}{"symbol": sig.Symbol})
		outcome.GuardError = err.Error()
		return outcome, nil
	}
	outcome.Guard = info
	return outcome, nil
}

// CancelGuard stops the guard for userID and symbol and reports whether one was running.
func (s *TradingService) CancelGuard(userID int64, symbol string) bool {
	return s.guards.Cancel(domain.GuardKey{UserID: userID, Symbol: symbol})
}

// ActiveGuards lists running guards.
func (s *TradingService) ActiveGuards() []domain.GuardInfo {
	return s.guards.Snapshot()
}

// RecentOrders returns the latest journaled orders of a user.
func (s *TradingService) RecentOrders(ctx context.Context, userID int64, limit int) ([]*domain.OrderRecord, error) {
	return s.journal.RecentOrders(ctx, userID, limit)
}

// GuardHistory returns finished guards of a user for one symbol.
func (s *TradingService) GuardHistory(ctx context.Context, userID int64, symbol string, limit int) ([]*domain.GuardReport, error) {
	return s.journal.GuardsBySymbol(ctx, userID, symbol, limit)
}

// recordOrder writes to the journal. Journal failures are logged only: the order
// already exists on the exchange.
func (s *TradingService) recordOrder(ctx context.Context, rec *domain.OrderRecord) {
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	id, err := s.journal.RecordOrder(jctx, rec)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to journal order", map[string]interface{}{"orderID": rec.OrderID, "symbol": rec.Symbol})
		return
	}
	rec.ID = id
}

func (s *TradingService) recordGuard(report domain.GuardReport) {
	ctx, cancel := context.WithTimeout(ports.WithTraceID(context.Background(), report.GuardID), journalTimeout)
	defer cancel()

	if err := s.journal.RecordGuard(ctx, &report); err != nil {
		s.logger.Error(ctx, err, "Failed to journal guard report", map[string]interface{}{"key": report.Key.String()})
	}
	if report.State == domain.GuardTriggered && report.Order != nil {
		s.recordOrder(ctx, &domain.OrderRecord{
			UserID:     report.Key.UserID,
			Symbol:     report.Order.Symbol,
			Side:       report.Order.Side,
			OrderID:    report.Order.OrderID,
			Status:     report.Order.Status,
			Quantity:   report.Order.Quantity,
			TakeProfit: report.TakeProfit,
			StopLoss:   report.StopLoss,
			Source:     sourceGuard,
			CreatedAt:  report.EndedAt,
		})
	}
}
