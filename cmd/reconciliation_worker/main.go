package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/data/mongo"
	"github.com/ledger-integrity-pipeline/internal/data/postgres"
	"github.com/ledger-integrity-pipeline/internal/logger"
	"github.com/ledger-integrity-pipeline/internal/platform/messaging/consumers"
	"github.com/ledger-integrity-pipeline/internal/platform/messaging/producers"
	"github.com/ledger-integrity-pipeline/internal/platform/persistence"
	"github.com/ledger-integrity-pipeline/internal/reconciliation_worker/components"
	"github.com/ledger-integrity-pipeline/internal/reconciliation_worker/consumer"
	"github.com/ledger-integrity-pipeline/internal/reconciliation_worker/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("reconciliation_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Reconciliation Worker",
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

	// Initialize repositories
	documentRepo := postgres.NewDocumentRepository(log, postgresDB)
	bankTransactionRepo := postgres.NewBankTransactionRepository(log, postgresDB)
	linkRepo := mongo.NewLinkRepository(log, mongoDB.Database())

	// The unique indexes are what make concurrent links collide
	if err := linkRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure link indexes", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	// Initialize matching service
	matchingService := components.CreateMatchingService(
		documentRepo,
		bankTransactionRepo,
		linkRepo,
		log,
		cfg,
	)

	documentEventHandler := consumer.NewDocumentEventHandler(
		log.With("component", "document_event_handler"),
		&cfg.Sweeper,
		matchingService,
		documentRepo,
		deadLetters,
	)

	sweeper := service.NewSweeper(
		&cfg.Sweeper,
		documentRepo,
		matchingService,
		log.With("component", "sweeper"),
	)

	// Create error channel for service errors
	errChan := make(chan error, 1)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer
	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.DocumentTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, documentEventHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	// Start sweeper in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close Kafka consumer before releasing the pool it submits to
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	if wpService, ok := matchingService.(*service.WorkerPoolMatchingService); ok {
		log.Info("Shutting down worker pool", "running_workers", wpService.Running())
		wpService.Shutdown()
	}

	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Reconciliation Worker shutdown with errors", "error", serviceErr)
	}
	if err != nil {
		log.Error("Reconciliation Worker shutdown completed with errors")
	} else {
		log.Info("Reconciliation Worker shutdown completed successfully")
	}
}
