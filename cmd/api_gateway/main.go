package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ledger-integrity-pipeline/internal/api_gateway"
	"github.com/ledger-integrity-pipeline/internal/api_gateway/outbox_relay"
	"github.com/ledger-integrity-pipeline/internal/api_gateway/service"
	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/data/cache"
	"github.com/ledger-integrity-pipeline/internal/data/mongo"
	"github.com/ledger-integrity-pipeline/internal/data/postgres"
	"github.com/ledger-integrity-pipeline/internal/logger"
	"github.com/ledger-integrity-pipeline/internal/platform/messaging/producers"
	"github.com/ledger-integrity-pipeline/internal/platform/persistence"
	"github.com/ledger-integrity-pipeline/internal/platform/storage"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting API Gateway",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Export files are only uploaded when a bucket is configured
	var exportSink service.ExportSink
	if cfg.Storage.Enabled() {
		s3Sink, err := storage.NewS3Sink(appCtx, log, &cfg.Storage)
		if err != nil {
			log.Error("Failed to initialize export storage", "error", err)
			os.Exit(1)
		}
		exportSink = s3Sink
	}

	// Initialize Kafka producer (publishes document events for the reconciliation worker)
	eventProducer, err := producers.NewDocumentEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize document event producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	sequenceRepo := postgres.NewSequenceRepository(log, postgresDB)
	documentRepo := postgres.NewDocumentRepository(log, postgresDB)
	bankTransactionRepo := postgres.NewBankTransactionRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	linkRepo := mongo.NewLinkRepository(log, mongoDB.Database())
	exportRecordRepo := mongo.NewExportRecordRepository(log, mongoDB.Database())

	if err := linkRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure link indexes", "error", err)
		os.Exit(1)
	}
	if err := exportRecordRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure export record indexes", "error", err)
		os.Exit(1)
	}

	exportLock := cache.NewExportLock(log, redisClient, cfg.Export.LockTTL)

	// Initialize services
	sequenceService := service.NewSequenceService(log, &cfg.Sequence, sequenceRepo, documentRepo)
	services := api_gateway.Services{
		Sequences:        sequenceService,
		Documents:        service.NewDocumentService(log, postgresDB, documentRepo, sequenceRepo, sequenceService, outboxRepo),
		BankTransactions: service.NewBankTransactionService(log, postgresDB, bankTransactionRepo, outboxRepo),
		Exports:          service.NewExportService(log, &cfg.Export, documentRepo, linkRepo, exportRecordRepo, exportLock, exportSink),
		Links:            service.NewLinkService(log, linkRepo),
	}

	// Initialize outbox relay
	eventRelay := outbox_relay.NewEventRelay(outboxRepo, eventProducer, log)
	poller := outbox_relay.NewPoller(&cfg.Outbox, outboxRepo, eventRelay, log)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, services)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	var wg sync.WaitGroup

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start outbox relay in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Drain HTTP requests before the stores they use go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Stop the relay and wait for its current batch
	cancelAppCtx()
	wg.Wait()

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	if redisClient != nil {
		if err = redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", "error", err)
		}
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
