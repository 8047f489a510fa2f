package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"mexcGuardBot/config"
	"mexcGuardBot/internal/adapters/httpapi"
	"mexcGuardBot/internal/adapters/llm"
	"mexcGuardBot/internal/adapters/logger"
	"mexcGuardBot/internal/adapters/mexcclient"
	"mexcGuardBot/internal/adapters/sqlstore"
	"mexcGuardBot/internal/app"
	"mexcGuardBot/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})
	if !cfg.Credentials().Complete() {
		appLogger.Warn(context.Background(), "MEXC_API_KEY/MEXC_API_SECRET not set, alerts will be parsed but not executed")
	}

	// 3. Initialize Journal (Database Adapter)
	repo, err := sqlstore.NewRepository(sqlstore.Config{
		Driver: cfg.DBDriver,
		DBPath: cfg.DBPath,
		DSN:    cfg.DBDSN,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize journal repository")
		log.Fatalf("FATAL: Failed to initialize journal repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing journal repository")
		}
	}()

	// 4. Initialize Exchange Client (MEXC Adapter)
	mexcClient, err := mexcclient.New(mexcclient.Config{
		BaseURL:    cfg.BaseURL,
		QuoteAsset: cfg.QuoteAsset,
		RecvWindow: cfg.RecvWindowMS,
		Timeout:    cfg.HTTPTimeout,
		RetryCount: cfg.RetryCount,
		RateLimit:  cfg.RateLimitPerSecond,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize MEXC client")
		log.Fatalf("FATAL: Failed to initialize MEXC client: %v", err)
	}
	appLogger.Info(context.Background(), "MEXC client initialized")

	// 5. Initialize optional LLM extractor
	var extractor ports.SignalExtractor
	if cfg.OpenAIAPIKey != "" {
		ext, err := llm.New(llm.Config{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			QuoteAsset: cfg.QuoteAsset,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize LLM extractor")
			log.Fatalf("FATAL: Failed to initialize LLM extractor: %v", err)
		}
		extractor = ext
		appLogger.Info(context.Background(), "LLM extraction fallback enabled", map[string]interface{}{"model": cfg.OpenAIModel})
	}

	// 6. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, appLogger, mexcClient, repo, extractor)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized")

	// 7. Initialize HTTP API
	server, err := httpapi.NewServer(httpapi.Config{
		Service:    tradingService,
		Creds:      cfg.Credentials(),
		Logger:     appLogger,
		RateLimit:  cfg.HTTPRateLimit,
		AuthSecret: cfg.HTTPAuthSecret,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP API")
		log.Fatalf("FATAL: Failed to initialize HTTP API: %v", err)
	}
	if cfg.HTTPAuthSecret == "" {
		appLogger.Warn(context.Background(), "HTTP_AUTH_SECRET not set, API is unauthenticated and bound to loopback only", map[string]interface{}{"addr": cfg.HTTPAddr})
	}

	// 8. Run until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceDone := make(chan error, 1)
	go func() { serviceDone <- tradingService.Run(ctx) }()

	if err := server.ListenAndServe(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout); err != nil {
		appLogger.Error(context.Background(), err, "HTTP API exited with error")
		stop()
	}
	if err := <-serviceDone; err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
