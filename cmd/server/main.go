package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	api "clubledger-backend/internal/api/grpc"
	httpapi "clubledger-backend/internal/api/http"
	"clubledger-backend/internal/config"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"
	"clubledger-backend/internal/repository/memory"
	"clubledger-backend/internal/repository/postgres"
	"clubledger-backend/internal/security"
	"clubledger-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Club Ledger Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http_address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress())
	logger.Info("Database configuration", "driver", cfg.Database.Driver, "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
	logger.Info("Notification configuration", "provider", cfg.Notifications.Provider, "workers", cfg.Notifications.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret)

	// Initialize Email Sender
	var sender service.EmailSender
	if cfg.Notifications.Provider == "sendgrid" {
		sender = service.NewSendGridSender(cfg.Notifications.SendGridAPIKey, cfg.Notifications.FromEmail, cfg.Notifications.FromName)
	} else {
		logger.Info("Using log email sender")
		sender = service.NewLogSender()
	}

	// Initialize Notifier
	notifier := service.NewAsyncNotifier(store, sender, service.NotifierConfig{
		Workers:     cfg.Notifications.Workers,
		QueueSize:   cfg.Notifications.QueueSize,
		MaxRetries:  cfg.Notifications.MaxRetries,
		ClubName:    cfg.Notifications.ClubName,
		FrontendURL: cfg.Notifications.FrontendURL,
	})
	// Workers outlive the signal so requests drained during shutdown can
	// still enqueue; Stop runs after the listeners close.
	notifier.Start(context.Background())
	defer notifier.Stop()

	// Initialize Services
	band := service.LowBalanceBand{Min: cfg.Notifications.LowBalanceMin, Max: cfg.Notifications.LowBalanceMax}
	services := httpapi.Services{
		Attendance:    service.NewAttendanceService(store, notifier, band),
		Payments:      service.NewPaymentService(store, service.NewStubCheckoutGateway(cfg.Billing.CheckoutURL), notifier, cfg.Billing.ReturnURL),
		Ledger:        service.NewLedgerService(store),
		Notifications: service.NewNotificationService(store),
	}

	// Set up HTTP server
	router := httpapi.NewRouter(services, httpapi.RouterConfig{
		Tokens:         tokenManager,
		Store:          store,
		WebhookLimiter: rate.NewLimiter(rate.Limit(cfg.Webhook.RatePerSecond), cfg.Webhook.Burst),
	})
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Set up gRPC server
	lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	grpcServer, probe := api.NewServer(tokenManager, services.Ledger, store, 10*time.Second)
	go probe.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("gRPC server listening", "address", cfg.GetGRPCAddress())
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Server error", "error", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	logger.Info("Server stopped. Goodbye!")
}

// openStore builds the configured store and returns a function that releases
// it.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("Using in-memory store; data is lost on restart")
		store := memory.NewStore(memory.WithTxTimeout(cfg.TxTimeout()))
		if cfg.Database.SeedFile != "" {
			if err := store.LoadSeed(cfg.Database.SeedFile); err != nil {
				return nil, nil, err
			}
			logger.Info("Seed loaded", "file", cfg.Database.SeedFile)
		}
		return store, func() {}, nil
	}

	logger.Info("Connecting to database...", "driver", cfg.Database.Driver)
	db, err := postgres.Open(ctx, cfg.Database.Driver, cfg.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Database connection established")
	return postgres.NewStore(db, cfg.TxTimeout(), cfg.LockTimeout()), func() { db.Close() }, nil
}
