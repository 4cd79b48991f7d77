package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hakotapp/hakot/internal"
	"github.com/hakotapp/hakot/internal/events"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/handler"
	"github.com/hakotapp/hakot/internal/middleware"
	"github.com/hakotapp/hakot/internal/poller"
	"github.com/hakotapp/hakot/internal/postgres"
	"github.com/hakotapp/hakot/internal/router"
	"github.com/hakotapp/hakot/internal/service"
	"github.com/hakotapp/hakot/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := postgres.Connect(ctx, cfg.DatabaseUrl)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.NewStore(pool)

	// Initialize payment gateway
	provider, err := gateway.NewMidtransProvider(gateway.MidtransConfig{
		ServerKey:  cfg.Midtrans.ServerKey,
		Production: cfg.Midtrans.Production,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}
	logger.Info("Midtrans gateway initialized", "production", cfg.Midtrans.Production)

	// Initialize event publisher (optional)
	var publisher service.ActivationPublisher
	if cfg.Nats.URL != "" {
		natsPublisher, err := events.NewPublisher(cfg.Nats.URL)
		if err != nil {
			return fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info("Event publisher initialized", "url", cfg.Nats.URL)
	} else {
		logger.Warn("NATS_URL not set, activation events disabled")
	}

	// Initialize metrics
	httpMetrics := middleware.NewMetrics("hakot")
	businessMetrics := telemetry.NewBusinessMetrics("hakot")

	// Initialize services
	returnURL := cfg.BaseURL + "/payments/return"
	subscriptionService := service.NewSubscriptionService(store, store, store, provider, businessMetrics, logger, returnURL)
	confirmationService := service.NewConfirmationService(store, store, provider, publisher, businessMetrics, logger)
	ledgerService := service.NewLedgerService(store, businessMetrics, logger)

	// Initialize poller and resume payments that were in flight before the
	// last shutdown
	statusPoller := poller.New(provider, confirmationService, store, poller.Config{
		Interval:    cfg.Poller.Interval,
		MaxAttempts: cfg.Poller.MaxAttempts,
	}, businessMetrics, logger)
	if err := statusPoller.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume pending polls: %w", err)
	}

	// Create router and register routes
	r := router.New(
		middleware.Recovery(logger),
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.MaxBodySize(middleware.MaxJSONBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		middleware.WithRequestLogger(logger),
	)

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		httpMetrics.Handler().ServeHTTP(w, req)
	})

	handler.RegisterRoutes(r, handler.Deps{
		Subscriptions: handler.NewSubscriptionHandler(subscriptionService, statusPoller, ctx),
		Payments:      handler.NewPaymentHandler(confirmationService, ledgerService),
		Webhooks:      handler.NewWebhookHandler(provider, confirmationService, businessMetrics),
	})

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	// In-flight polls stop with ctx; their pending slots survive in the
	// store and are resumed on the next start.
	statusPoller.Wait()
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
