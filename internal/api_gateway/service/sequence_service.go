package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
)

// Allocation is one issued number
type Allocation struct {
	TenantID  string        `json:"tenant_id"`
	Type      sequence.Type `json:"document_type"`
	Number    int64         `json:"number"`
	Formatted string        `json:"formatted"`
	Attempts  int           `json:"attempts"`
}

// GapRange is an inclusive run of numbers with no issued document
type GapRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// ResyncResult reports what a resync observed and changed
type ResyncResult struct {
	TenantID       string        `json:"tenant_id"`
	Type           sequence.Type `json:"document_type"`
	PreviousNext   int64         `json:"previous_next_number"`
	NextNumber     int64         `json:"next_number"`
	Advanced       bool          `json:"advanced"`
	IssuedCount    int           `json:"issued_count"`
	MaxIssued      int64         `json:"max_issued,omitempty"`
	FormatDrift    []string      `json:"format_drift"`
	Gaps           []GapRange    `json:"gaps"`
	GapsTruncated  bool          `json:"gaps_truncated,omitempty"`
	DuplicateCount int           `json:"duplicate_count,omitempty"`
}

const maxReportedGaps = 100

// SequenceServiceImpl implements SequenceService
type SequenceServiceImpl struct {
	repo        sequence.Repository
	issued      sequence.IssuedNumberLister
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// NewSequenceService creates the allocator
func NewSequenceService(logger *slog.Logger, cfg *config.SequenceConfig, repo sequence.Repository, issued sequence.IssuedNumberLister) *SequenceServiceImpl {
	return &SequenceServiceImpl{
		repo:        repo,
		issued:      issued,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		maxDelay:    cfg.RetryMaxDelay,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Allocate issues the next number of the tenant's series
func (s *SequenceServiceImpl) Allocate(ctx context.Context, tenantID string, t sequence.Type) (*Allocation, error) {
	return s.AllocateTx(ctx, s.repo, tenantID, t)
}

// AllocateTx runs the allocation against repo, which callers bind to an
// open database transaction so the number is only consumed if it commits.
func (s *SequenceServiceImpl) AllocateTx(ctx context.Context, repo sequence.Repository, tenantID string, t sequence.Type) (*Allocation, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if !t.IsValid() {
		return nil, sequence.ErrUnknownDocumentType
	}

	var (
		allocation *Allocation
		attempts   int
	)

	operation := func() error {
		attempts++
		seq, err := s.loadOrCreate(ctx, repo, tenantID, t)
		if err != nil {
			return err
		}
		if err := repo.CompareAndIncrement(ctx, tenantID, t, seq.NextNumber); err != nil {
			return err
		}
		allocation = &Allocation{
			TenantID:  tenantID,
			Type:      t,
			Number:    seq.NextNumber,
			Formatted: seq.Formatted(seq.NextNumber, s.now()),
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if errors.Is(err, sequence.ErrConcurrentModification{}) {
			s.logger.Debug("Sequence allocation lost a race, retrying",
				"tenant_id", tenantID, "document_type", string(t), "attempt", attempts, "wait", wait)
			return
		}
		s.logger.Warn("Sequence allocation failed, retrying",
			"tenant_id", tenantID, "document_type", string(t), "attempt", attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, s.retryPolicy(ctx), notify)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("Sequence unavailable",
			"tenant_id", tenantID, "document_type", string(t), "attempts", attempts, "error", err)
		return nil, &sequence.UnavailableError{TenantID: tenantID, Type: t, Attempts: attempts, Err: err}
	}

	allocation.Attempts = attempts
	s.logger.Info("Allocated document number",
		"tenant_id", tenantID,
		"document_type", string(t),
		"number", allocation.Formatted,
		"attempts", attempts,
	)
	return allocation, nil
}

// retryPolicy is jittered exponential backoff limited to maxAttempts tries
// in total and aborted by ctx.
func (s *SequenceServiceImpl) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.MaxInterval = s.maxDelay
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	retries := s.maxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (s *SequenceServiceImpl) loadOrCreate(ctx context.Context, repo sequence.Repository, tenantID string, t sequence.Type) (*sequence.NumberSequence, error) {
	seq, err := repo.Get(ctx, tenantID, t)
	if err == nil {
		return seq, nil
	}
	if !errors.Is(err, sequence.ErrSequenceNotFound{}) {
		return nil, err
	}

	fresh, err := sequence.NewNumberSequence(tenantID, t)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	created, err := repo.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("Created number sequence",
			"tenant_id", tenantID, "document_type", string(t), "format", fresh.Format, "start", fresh.NextNumber)
	}
	return repo.Get(ctx, tenantID, t)
}

// Resync moves the counter past the highest number actually issued. It only
// ever raises the counter and is safe to repeat.
func (s *SequenceServiceImpl) Resync(ctx context.Context, tenantID string, t sequence.Type) (*ResyncResult, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if !t.IsValid() {
		return nil, sequence.ErrUnknownDocumentType
	}

	seq, err := s.loadOrCreate(ctx, s.repo, tenantID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to load sequence: %w", err)
	}

	numbers, err := s.issued.ListIssuedNumbers(ctx, tenantID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to list issued numbers: %w", err)
	}

	result := &ResyncResult{
		TenantID:     tenantID,
		Type:         t,
		PreviousNext: seq.NextNumber,
		NextNumber:   seq.NextNumber,
		IssuedCount:  len(numbers),
		FormatDrift:  []string{},
		Gaps:         []GapRange{},
	}

	format := sequence.ParseFormat(seq.Format)
	parsed := make([]int64, 0, len(numbers))
	for _, raw := range numbers {
		n, err := format.Parse(raw)
		if err != nil {
			s.logger.Warn("Issued number does not match sequence format",
				"tenant_id", tenantID, "document_type", string(t), "number", raw, "format", seq.Format)
			result.FormatDrift = append(result.FormatDrift, raw)
			continue
		}
		parsed = append(parsed, n)
	}

	if len(parsed) == 0 {
		return result, nil
	}

	sort.Slice(parsed, func(i, j int) bool { return parsed[i] < parsed[j] })
	result.MaxIssued = parsed[len(parsed)-1]
	result.Gaps, result.GapsTruncated, result.DuplicateCount = findGaps(parsed)

	advanced, err := s.repo.AdvanceTo(ctx, tenantID, t, result.MaxIssued+1)
	if err != nil {
		return nil, fmt.Errorf("failed to advance sequence: %w", err)
	}
	result.Advanced = advanced

	current, err := s.repo.Get(ctx, tenantID, t)
	if err != nil {
		return nil, fmt.Errorf("failed to reload sequence: %w", err)
	}
	result.NextNumber = current.NextNumber

	if advanced {
		s.logger.Warn("Sequence resynced forward",
			"tenant_id", tenantID,
			"document_type", string(t),
			"previous_next_number", result.PreviousNext,
			"next_number", result.NextNumber,
		)
	}
	if len(result.Gaps) > 0 {
		s.logger.Info("Sequence has numbering gaps",
			"tenant_id", tenantID, "document_type", string(t), "gap_ranges", len(result.Gaps))
	}
	return result, nil
}

// findGaps walks sorted numbers and collects the missing runs between them
func findGaps(sorted []int64) ([]GapRange, bool, int) {
	gaps := []GapRange{}
	truncated := false
	duplicates := 0

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur == prev {
			duplicates++
			continue
		}
		if cur > prev+1 {
			if len(gaps) == maxReportedGaps {
				truncated = true
				continue
			}
			gaps = append(gaps, GapRange{From: prev + 1, To: cur - 1})
		}
	}
	return gaps, truncated, duplicates
}

// BootstrapDefaults creates every default series the tenant does not have
// yet. Existing counters are never touched.
func (s *SequenceServiceImpl) BootstrapDefaults(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}

	for _, d := range sequence.Defaults() {
		seq, err := sequence.NewNumberSequence(tenantID, d.Type)
		if err != nil {
			return nil, err
		}
		created, err := s.repo.CreateIfAbsent(ctx, seq)
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap %s sequence: %w", d.Type, err)
		}
		if created {
			s.logger.Info("Bootstrapped number sequence", "tenant_id", tenantID, "document_type", string(d.Type))
		}
	}

	return s.repo.List(ctx, tenantID)
}

// List returns the tenant's sequences
func (s *SequenceServiceImpl) List(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	return s.repo.List(ctx, tenantID)
}
