package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mexcGuardBot/internal/app"
	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
	"mexcGuardBot/internal/userconfig"
)

type alertRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

type parseRequest struct {
	Text string `json:"text" binding:"required"`
}

type configRequest struct {
	Args []string `json:"args" binding:"required"`
}

type signalDTO struct {
	Coin       string  `json:"coin"`
	Side       string  `json:"side"`
	Pair       string  `json:"pair"`
	Symbol     string  `json:"symbol"`
	Entry      float64 `json:"entry"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

type configDTO struct {
	QuoteUSDT   float64  `json:"quote_usdt"`
	MaxSlippage float64  `json:"max_slippage"`
	TPMode      string   `json:"tp_mode"`
	SLMode      string   `json:"sl_mode"`
	Lines       []string `json:"lines"`
}

type orderDTO struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Quantity      string `json:"quantity,omitempty"`
	QuoteAmount   string `json:"quote_amount,omitempty"`
}

type guardDTO struct {
	GuardID   string    `json:"guard_id"`
	UserID    int64     `json:"user_id"`
	Symbol    string    `json:"symbol"`
	StartedAt time.Time `json:"started_at"`
}

type orderRecordDTO struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	Quantity    string    `json:"quantity,omitempty"`
	QuoteAmount string    `json:"quote_amount,omitempty"`
	Entry       float64   `json:"entry,omitempty"`
	TakeProfit  float64   `json:"take_profit,omitempty"`
	StopLoss    float64   `json:"stop_loss,omitempty"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

type guardReportDTO struct {
	GuardID      string    `json:"guard_id"`
	UserID       int64     `json:"user_id"`
	Symbol       string    `json:"symbol"`
	TakeProfit   float64   `json:"take_profit"`
	StopLoss     float64   `json:"stop_loss"`
	State        string    `json:"state"`
	Reason       string    `json:"reason,omitempty"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	Polls        int       `json:"polls"`
	OrderID      string    `json:"order_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

func toSignalDTO(sig domain.TradeSignal) signalDTO {
	return signalDTO{
		Coin: sig.Coin, Side: string(sig.Side), Pair: sig.Pair, Symbol: sig.Symbol,
		Entry: sig.Entry, TakeProfit: sig.TakeProfit, StopLoss: sig.StopLoss,
	}
}

func toConfigDTO(cfg domain.UserConfig) configDTO {
	return configDTO{
		QuoteUSDT: cfg.QuoteAmount, MaxSlippage: cfg.MaxSlippage,
		TPMode: string(cfg.TPMode), SLMode: string(cfg.SLMode),
		Lines: userconfig.Format(cfg),
	}
}

func toOrderDTO(o *domain.OrderResult) *orderDTO {
	if o == nil {
		return nil
	}
	return &orderDTO{
		OrderID: o.OrderID, ClientOrderID: o.ClientOrderID, Symbol: o.Symbol, Side: string(o.Side),
		Status: o.Status, Quantity: o.Quantity, QuoteAmount: o.QuoteAmount,
	}
}

func toOrderRecordDTO(r *domain.OrderRecord) orderRecordDTO {
	return orderRecordDTO{
		ID: r.ID, UserID: r.UserID, Symbol: r.Symbol, Side: string(r.Side), OrderID: r.OrderID,
		Status: r.Status, Quantity: r.Quantity, QuoteAmount: r.QuoteAmount, Entry: r.Entry,
		TakeProfit: r.TakeProfit, StopLoss: r.StopLoss, Source: r.Source, CreatedAt: r.CreatedAt,
	}
}

func toGuardReportDTO(r *domain.GuardReport) guardReportDTO {
	dto := guardReportDTO{
		GuardID: r.GuardID, UserID: r.Key.UserID, Symbol: r.Key.Symbol, TakeProfit: r.TakeProfit,
		StopLoss: r.StopLoss, State: string(r.State), Reason: string(r.Reason), TriggerPrice: r.TriggerPrice,
		Polls: r.Polls, StartedAt: r.StartedAt, EndedAt: r.EndedAt,
	}
	if r.Order != nil {
		dto.OrderID = r.Order.OrderID
	}
	return dto
}

func toGuardDTO(g domain.GuardInfo) guardDTO {
	return guardDTO{GuardID: g.GuardID, UserID: g.Key.UserID, Symbol: g.Key.Symbol, StartedAt: g.StartedAt}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ports.ErrNoSignal), errors.Is(err, ports.ErrUnsupportedSide):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ports.ErrSlippageExceeded), errors.Is(err, ports.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, ports.ErrMissingCredentials):
		return http.StatusPreconditionFailed
	case errors.Is(err, ports.ErrInvalidRequest), errors.Is(err, ports.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrExchange), errors.Is(err, ports.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var slipErr *ports.SlippageError
	if errors.As(err, &slipErr) {
		body["current_price"] = slipErr.CurrentPrice
		body["deviation"] = slipErr.Deviation
		body["max_slippage"] = slipErr.MaxSlippage
	}
	var exErr *ports.ExchangeError
	if errors.As(err, &exErr) && exErr.APIError != nil {
		body["exchange_code"] = exErr.Code
	}
	c.JSON(status, body)
}

func userIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	if !allowUser(c, id) {
		return 0, false
	}
	return id, true
}

func limitQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		return 20
	}
	return limit
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "active_guards": len(s.svc.ActiveGuards())})
}

func (s *Server) postAlert(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !allowUser(c, req.UserID) {
		return
	}

	outcome, err := s.svc.HandleAlert(c.Request.Context(), req.UserID, req.Text, s.creds)
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := gin.H{
		"signal": toSignalDTO(outcome.Signal),
		"config": toConfigDTO(outcome.Config),
		"order":  toOrderDTO(outcome.Order),
	}
	if outcome.Guard != nil {
		resp["guard"] = toGuardDTO(*outcome.Guard)
	}
	if outcome.GuardError != "" {
		resp["guard_error"] = outcome.GuardError
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) parseSignal(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, ok := s.svc.ParseSignal(c.Request.Context(), req.Text)
	if !ok {
		s.fail(c, ports.ErrNoSignal)
		return
	}
	c.JSON(http.StatusOK, toSignalDTO(sig))
}

func (s *Server) getConfig(c *gin.Context) {
	userID, ok := userIDParam(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toConfigDTO(s.svc.GetOrCreateConfig(userID)))
}

func (s *Server) putConfig(c *gin.Context) {
	userID, ok := userIDParam(c, "id")
	if !ok {
		return
	}
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, ignored := s.svc.UpdateConfig(userID, req.Args)
	if ignored == nil {
		ignored = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"config": toConfigDTO(cfg), "ignored": ignored})
}

func (s *Server) listOrders(c *gin.Context) {
	userID, ok := userIDParam(c, "id")
	if !ok {
		return
	}
	orders, err := s.svc.RecentOrders(c.Request.Context(), userID, limitQuery(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]orderRecordDTO, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderRecordDTO(o))
	}
	c.JSON(http.StatusOK, gin.H{"orders": out})
}

func (s *Server) guardHistory(c *gin.Context) {
	userID, ok := userIDParam(c, "id")
	if !ok {
		return
	}
	reports, err := s.svc.GuardHistory(c.Request.Context(), userID, strings.ToUpper(c.Param("symbol")), limitQuery(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]guardReportDTO, 0, len(reports))
	for _, r := range reports {
		out = append(out, toGuardReportDTO(r))
	}
	c.JSON(http.StatusOK, gin.H{"guards": out})
}

func (s *Server) listGuards(c *gin.Context) {
	active := s.svc.ActiveGuards()
	scope := scopedUser(c)
	out := make([]guardDTO, 0, len(active))
	for _, g := range active {
		if scope != 0 && g.Key.UserID != scope {
			continue
		}
		out = append(out, toGuardDTO(g))
	}
	c.JSON(http.StatusOK, gin.H{"guards": out})
}

func (s *Server) cancelGuard(c *gin.Context) {
	userID, ok := userIDParam(c, "user")
	if !ok {
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	if !s.svc.CancelGuard(userID, symbol) {
		s.fail(c, fmt.Errorf("%w: no active guard for user %d on %s", ports.ErrNotFound, userID, symbol))
		return
	}
	s.logger.Info(c.Request.Context(), "Guard cancelled via API", map[string]interface{}{"userID": userID, "symbol": symbol})
	c.JSON(http.StatusOK, gin.H{"cancelled": true, "symbol": symbol})
}

// Compile-time check that the trading service satisfies Service.
var _ Service = (*app.TradingService)(nil)
