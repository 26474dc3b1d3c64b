package components

import (
	"log/slog"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/reconciliation_worker/service"
)

// CreateMatchingService creates the matcher and runs it on a worker pool.
func CreateMatchingService(
	documents service.DocumentStore,
	candidates service.CandidateSource,
	links service.LinkStore,
	logger *slog.Logger,
	cfg *config.Config,
) service.MatchingService {
	baseService := service.NewMatcherService(
		logger.With("component", "matcher"),
		&cfg.Matcher,
		documents,
		candidates,
		links,
	)

	workerPoolService, err := service.NewWorkerPoolMatchingService(
		baseService,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)

	if err != nil {
		logger.Error("Failed to create worker pool matching service, falling back to base service", "error", err)
		return baseService
	}

	logger.Info("Created worker pool matching service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
