package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

// WorkerPoolMatchingService runs matching on a bounded ants pool
type WorkerPoolMatchingService struct {
	baseService MatchingService
	pool        *ants.Pool
	logger      *slog.Logger
	// Use a mutex to protect access to the in-flight map
	mu       sync.Mutex
	inFlight map[string]struct{}
}

type WorkerPoolConfig struct {
	Size int
}

type batchOutcome struct {
	results []reconciliation.LinkResult
	err     error
}

func NewWorkerPoolMatchingService(
	baseService MatchingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolMatchingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolMatchingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
	}, nil
}

// AutoLink submits a single document to the pool and waits for its result.
func (s *WorkerPoolMatchingService) AutoLink(ctx context.Context, tenantID string, doc *document.FinancialDocument) (reconciliation.LinkResult, error) {
	docCopy := *doc
	results, err := s.submit(ctx, tenantID, "document:"+doc.ID.String(), func() ([]reconciliation.LinkResult, error) {
		r, err := s.baseService.AutoLink(ctx, tenantID, &docCopy)
		if err != nil {
			return nil, err
		}
		return []reconciliation.LinkResult{r}, nil
	})
	if err != nil {
		return reconciliation.LinkResult{}, err
	}
	return results[0], nil
}

// LinkBatch submits the whole batch as one task, so the batch still shares
// a single read of the linked sets.
func (s *WorkerPoolMatchingService) LinkBatch(ctx context.Context, tenantID string, docs []*document.FinancialDocument) ([]reconciliation.LinkResult, error) {
	return s.submit(ctx, tenantID, "batch:"+uuid.NewString(), func() ([]reconciliation.LinkResult, error) {
		return s.baseService.LinkBatch(ctx, tenantID, docs)
	})
}

func (s *WorkerPoolMatchingService) submit(
	ctx context.Context,
	tenantID, taskID string,
	task func() ([]reconciliation.LinkResult, error),
) ([]reconciliation.LinkResult, error) {
	logger := s.logger.With("tenant_id", tenantID, "task_id", taskID)
	logger.Debug("Submitting matching task to worker pool")

	resultChan := make(chan batchOutcome, 1)

	s.mu.Lock()
	s.inFlight[taskID] = struct{}{}
	s.mu.Unlock()

	err := s.pool.Submit(func() {
		results, err := task()

		s.mu.Lock()
		delete(s.inFlight, taskID)
		s.mu.Unlock()

		resultChan <- batchOutcome{results: results, err: err}
	})
	if err != nil {
		s.mu.Lock()
		delete(s.inFlight, taskID)
		s.mu.Unlock()

		logger.Error("Failed to submit matching task to worker pool", "error", err)
		return nil, err
	}

	select {
	case out := <-resultChan:
		return out.results, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight returns the number of submitted tasks that have not finished.
func (s *WorkerPoolMatchingService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

// Shutdown gracefully shuts down the worker pool.
func (s *WorkerPoolMatchingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *WorkerPoolMatchingService) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *WorkerPoolMatchingService) Capacity() int {
	return s.pool.Cap()
}
