package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

// Sweeper periodically re-runs matching over finalized, paid or booked documents
// that are still unlinked.
type Sweeper struct {
	documents DocumentStore
	matcher   MatchingService
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
	lookback  time.Duration
	now       func() time.Time
}

func NewSweeper(
	cfg *config.SweeperConfig,
	documents DocumentStore,
	matcher MatchingService,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		documents: documents,
		matcher:   matcher,
		logger:    logger,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		lookback:  cfg.Lookback,
		now:       time.Now,
	}
}

// SweepSummary counts the outcomes of one sweep
type SweepSummary struct {
	Documents     int
	Linked        int
	NoMatch       int
	AlreadyLinked int
	FailedTenants int
}

// Start sweeps until the context is canceled
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting reconciliation sweeper",
		"interval", s.interval.String(),
		"batch_size", s.batchSize,
		"lookback", s.lookback.String(),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reconciliation sweeper stopping due to context cancellation.")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Error during reconciliation sweep", "error", err)
			}
		}
	}
}

// Sweep runs one pass over the whole lookback window, one page of batchSize
// documents at a time. Documents that stay unmatched do not hide newer ones
// because every page resumes behind the previous one. A failing tenant is
// logged and counted; the other tenants of the page still run.
func (s *Sweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	since := s.now().UTC().Add(-s.lookback)
	summary := SweepSummary{}

	var cursor *document.Cursor
	for {
		docs, err := s.documents.ListUnreconciled(ctx, "", since, cursor, s.batchSize)
		if err != nil {
			return summary, fmt.Errorf("failed to list unreconciled documents: %w", err)
		}
		if len(docs) == 0 {
			break
		}

		summary.Documents += len(docs)
		if err := s.sweepPage(ctx, docs, &summary); err != nil {
			return summary, err
		}

		if s.batchSize <= 0 || len(docs) < s.batchSize {
			break
		}
		cursor = document.CursorAfter(docs[len(docs)-1])
	}

	if summary.Documents == 0 {
		s.logger.Debug("No unreconciled documents found.")
		return summary, nil
	}

	s.logger.Info("Reconciliation sweep completed",
		"documents", summary.Documents,
		"linked", summary.Linked,
		"no_match", summary.NoMatch,
		"already_linked", summary.AlreadyLinked,
		"failed_tenants", summary.FailedTenants,
	)
	return summary, nil
}

func (s *Sweeper) sweepPage(ctx context.Context, docs []*document.FinancialDocument, summary *SweepSummary) error {
	byTenant := lo.GroupBy(docs, func(d *document.FinancialDocument) string {
		return d.TenantID
	})

	for _, tenantID := range lo.Keys(byTenant) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		results, err := s.matcher.LinkBatch(ctx, tenantID, byTenant[tenantID])
		if err != nil {
			summary.FailedTenants++
			s.logger.Error("Failed to sweep tenant", "tenant_id", tenantID, "error", err)
			continue
		}

		for _, r := range results {
			switch r.Outcome {
			case reconciliation.OutcomeLinked:
				summary.Linked++
			case reconciliation.OutcomeAlreadyLinked:
				summary.AlreadyLinked++
			default:
				summary.NoMatch++
			}
		}
	}
	return nil
}
