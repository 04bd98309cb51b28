package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/efreitasn/cohortex/internal/broadcast"
	"github.com/efreitasn/cohortex/internal/config"
	"github.com/efreitasn/cohortex/internal/engine"
	"github.com/efreitasn/cohortex/internal/handler"
	"github.com/efreitasn/cohortex/internal/logging"
	"github.com/efreitasn/cohortex/internal/metrics"
	"github.com/efreitasn/cohortex/internal/service"
	"github.com/efreitasn/cohortex/internal/settlement"
	"github.com/efreitasn/cohortex/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("cohortex exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Ledger.
	var ledger store.Ledger
	if cfg.LedgerDSN != "" {
		sqlLedger, err := store.OpenSQLLedger(cfg.LedgerDSN)
		if err != nil {
			return err
		}
		defer sqlLedger.Close()
		ledger = sqlLedger
		logger.Info("ledger ready", slog.String("backend", "sql"))
	} else {
		ledger = store.NewMemoryLedger()
		logger.Warn("LEDGER_DSN not set, trades will not survive a restart")
	}

	// Price cache.
	var prices store.PriceCache
	if cfg.RedisAddr != "" {
		var client *redis.Client
		client, err = store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		prices = store.NewRedisPriceCache(client, cfg.PriceTTL, logger)
		logger.Info("price cache ready", slog.String("backend", "redis"), slog.String("addr", cfg.RedisAddr))
	} else {
		prices = store.NewMemoryPriceCache(cfg.PriceTTL, nil)
	}

	// Cohort catalog.
	catalog, err := store.LoadCohortFile(cfg.CohortsFile)
	if err != nil {
		return fmt.Errorf("load cohorts: %w", err)
	}
	cohorts := store.NewCohortStore()
	cohorts.Load(catalog)
	logger.Info("cohorts loaded", slog.Int("count", len(catalog.Cohorts)), slog.String("file", cfg.CohortsFile))

	// Settlement gateway.
	var gateway settlement.Gateway
	if cfg.GatewayURL != "" {
		gateway = settlement.NewHTTPGateway(cfg.GatewayURL, cfg.SettlementTimeout)
		logger.Info("settlement gateway ready", slog.String("url", cfg.GatewayURL))
	} else {
		paper := settlement.NewPaperGateway()
		for _, c := range catalog.Cohorts {
			paper.Mint(c.ID, cfg.TreasuryWallet, c.Supply)
		}
		gateway = paper
		logger.Warn("GATEWAY_URL not set, settling against the paper gateway")
	}

	// Engine.
	hub := broadcast.NewHub(cfg.SubscriberBuffer, logger, m)
	executor := engine.NewExecutor(ledger, prices, cohorts, gateway, hub, engine.ExecutorConfig{
		Treasury:      cfg.TreasuryWallet,
		SettleTimeout: cfg.SettlementTimeout,
		Fees:          cfg.Fees,
	}, logger, m)
	reconciler := engine.NewReconciler(cfg.ReconcileInterval, cfg.ReconcileLookback, executor, ledger, gateway, logger, m)
	reconciler.Start(ctx)

	// Router.
	router := handler.NewRouter(handler.Services{
		Trades:    service.NewTradeService(executor, reconciler, ledger),
		Portfolio: service.NewPortfolioService(executor.Projector()),
		Cohorts:   service.NewCohortService(cohorts, prices, ledger),
		Hub:       hub,
		Metrics:   m,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for SIGINT/SIGTERM or a listener failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown: drain HTTP, end streams, then stop the reconciler.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()

	if n := len(executor.Pending()); n > 0 {
		logger.Error("trades settled but not recorded at shutdown", slog.Int("count", n))
	}
	logger.Info("server stopped")
	return nil
}
