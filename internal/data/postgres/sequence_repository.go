package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/ledger-integrity-pipeline/internal/platform/persistence"
)

// SequenceRepository implements the sequence.Repository interface for PostgreSQL
type SequenceRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSequenceRepository creates a new PostgreSQL sequence repository
func NewSequenceRepository(logger *slog.Logger, db *persistence.PostgresDB) sequence.Repository {
	return &SequenceRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so an allocation commits together with
// the document that consumes the number.
func (r *SequenceRepository) WithTx(tx pgx.Tx) sequence.Repository {
	return &SequenceRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Get retrieves the sequence for (tenant, type).
// Returns ErrSequenceNotFound if it has not been created yet.
func (r *SequenceRepository) Get(ctx context.Context, tenantID string, t sequence.Type) (*sequence.NumberSequence, error) {
	query := `
		SELECT tenant_id, document_type, next_number, format, version, created_at, updated_at
		FROM number_sequences
		WHERE tenant_id = $1 AND document_type = $2
	`

	var seq sequence.NumberSequence
	err := r.querier.QueryRow(ctx, query, tenantID, t).Scan(
		&seq.TenantID,
		&seq.DocumentType,
		&seq.NextNumber,
		&seq.Format,
		&seq.Version,
		&seq.CreatedAt,
		&seq.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sequence.ErrSequenceNotFound{TenantID: tenantID, Type: t}
		}
		r.logger.Error("Failed to get number sequence",
			"tenant_id", tenantID,
			"document_type", string(t),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get number sequence: %w", err)
	}

	return &seq, nil
}

// List returns every sequence of a tenant ordered by type.
func (r *SequenceRepository) List(ctx context.Context, tenantID string) ([]*sequence.NumberSequence, error) {
	query := `
		SELECT tenant_id, document_type, next_number, format, version, created_at, updated_at
		FROM number_sequences
		WHERE tenant_id = $1
		ORDER BY document_type ASC
	`

	rows, err := r.querier.Query(ctx, query, tenantID)
	if err != nil {
		r.logger.Error("Failed to list number sequences", "tenant_id", tenantID, "error", err)
		return nil, fmt.Errorf("failed to list number sequences: %w", err)
	}
	defer rows.Close()

	var sequences []*sequence.NumberSequence
	for rows.Next() {
		var seq sequence.NumberSequence
		if err := rows.Scan(
			&seq.TenantID,
			&seq.DocumentType,
			&seq.NextNumber,
			&seq.Format,
			&seq.Version,
			&seq.CreatedAt,
			&seq.UpdatedAt,
		); err != nil {
			r.logger.Error("Failed to scan number sequence", "error", err)
			return nil, fmt.Errorf("failed to scan number sequence: %w", err)
		}
		sequences = append(sequences, &seq)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over number sequences", "error", err)
		return nil, fmt.Errorf("error iterating over number sequences: %w", err)
	}

	return sequences, nil
}

// CreateIfAbsent inserts the sequence and leaves an existing row untouched.
func (r *SequenceRepository) CreateIfAbsent(ctx context.Context, seq *sequence.NumberSequence) (bool, error) {
	query := `
		INSERT INTO number_sequences (tenant_id, document_type, next_number, format, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, document_type) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query,
		seq.TenantID,
		seq.DocumentType,
		seq.NextNumber,
		seq.Format,
		seq.Version,
		seq.CreatedAt,
		seq.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create number sequence",
			"tenant_id", seq.TenantID,
			"document_type", string(seq.DocumentType),
			"error", err,
		)
		return false, fmt.Errorf("failed to create number sequence: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// CompareAndIncrement is the atomic conditional write behind allocation.
// Returns ErrConcurrentModification if next_number no longer equals expected.
func (r *SequenceRepository) CompareAndIncrement(ctx context.Context, tenantID string, t sequence.Type, expected int64) error {
	query := `
		UPDATE number_sequences
		SET next_number = next_number + 1, version = version + 1, updated_at = $4
		WHERE tenant_id = $1 AND document_type = $2 AND next_number = $3
	`

	result, err := r.querier.Exec(ctx, query, tenantID, t, expected, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to increment number sequence",
			"tenant_id", tenantID,
			"document_type", string(t),
			"expected", expected,
			"error", err,
		)
		return fmt.Errorf("failed to increment number sequence: %w", err)
	}

	if result.RowsAffected() == 0 {
		return sequence.ErrConcurrentModification{TenantID: tenantID, Type: t}
	}

	return nil
}

// AdvanceTo ratchets next_number forward; it never lowers it.
func (r *SequenceRepository) AdvanceTo(ctx context.Context, tenantID string, t sequence.Type, next int64) (bool, error) {
	query := `
		UPDATE number_sequences
		SET next_number = $3, version = version + 1, updated_at = $4
		WHERE tenant_id = $1 AND document_type = $2 AND next_number < $3
	`

	result, err := r.querier.Exec(ctx, query, tenantID, t, next, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to advance number sequence",
			"tenant_id", tenantID,
			"document_type", string(t),
			"next_number", next,
			"error", err,
		)
		return false, fmt.Errorf("failed to advance number sequence: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
