package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mexcGuardBot/internal/app"
	"mexcGuardBot/internal/domain"
	"mexcGuardBot/internal/ports"
)

// Service is the part of the trading service the HTTP API exposes.
type Service interface {
	ParseSignal(ctx context.Context, text string) (domain.TradeSignal, bool)
	GetOrCreateConfig(userID int64) domain.UserConfig
	UpdateConfig(userID int64, args []string) (domain.UserConfig, []string)
	HandleAlert(ctx context.Context, userID int64, text string, creds domain.Credentials) (*app.AlertOutcome, error)
	CancelGuard(userID int64, symbol string) bool
	ActiveGuards() []domain.GuardInfo
	RecentOrders(ctx context.Context, userID int64, limit int) ([]*domain.OrderRecord, error)
	GuardHistory(ctx context.Context, userID int64, symbol string, limit int) ([]*domain.GuardReport, error)
}

// Server wires HTTP endpoints around the trading service.
type Server struct {
	Router     *gin.Engine
	svc        Service
	creds      domain.Credentials
	logger     ports.Logger
	authSecret string
}

// Config holds configuration for the HTTP API.
type Config struct {
	Service   Service
	Creds     domain.Credentials // Account used for alerts received over HTTP
	Logger    ports.Logger
	RateLimit float64 // Requests per second across all clients, 0 disables

	// AuthSecret signs the Bearer JWTs required on /api/v1. Empty disables auth, which
	// config only allows on a loopback address.
	AuthSecret string
}

// NewServer builds the router.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP API")
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(cfg.Logger))
	if cfg.RateLimit > 0 {
		r.Use(RateLimitMiddleware(cfg.RateLimit))
	}

	s := &Server{Router: r, svc: cfg.Service, creds: cfg.Creds, logger: cfg.Logger, authSecret: cfg.AuthSecret}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api/v1")
	if s.authSecret != "" {
		api.Use(AuthMiddleware(s.authSecret))
	}
	{
		api.POST("/alerts", s.postAlert)
		api.POST("/signals/parse", s.parseSignal)

		users := api.Group("/users/:id")
		{
			users.GET("/config", s.getConfig)
			users.PUT("/config", s.putConfig)
			users.GET("/orders", s.listOrders)
			users.GET("/guards/:symbol", s.guardHistory)
		}

		api.GET("/guards", s.listGuards)
		api.DELETE("/guards/:user/:symbol", s.cancelGuard)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts the server down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP API listening", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP API shutdown failed: %w", err)
	}
	s.logger.Info(context.Background(), "HTTP API stopped")
	return nil
}
