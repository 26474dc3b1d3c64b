package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ledger-integrity-pipeline/internal/config"
	"github.com/ledger-integrity-pipeline/internal/domain/document"
	"github.com/ledger-integrity-pipeline/internal/domain/export"
	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

// ExportServiceImpl implements ExportService
type ExportServiceImpl struct {
	docs     document.Repository
	links    reconciliation.Repository
	records  export.RecordRepository
	lock     ExportLocker
	sink     ExportSink // nil keeps files in the response only
	encoder  *export.Encoder
	encoding string
	logger   *slog.Logger
}

// NewExportService creates the export service. sink may be nil.
func NewExportService(
	logger *slog.Logger,
	cfg *config.ExportConfig,
	docs document.Repository,
	links reconciliation.Repository,
	records export.RecordRepository,
	lock ExportLocker,
	sink ExportSink,
) *ExportServiceImpl {
	return &ExportServiceImpl{
		docs:     docs,
		links:    links,
		records:  records,
		lock:     lock,
		sink:     sink,
		encoder:  export.NewEncoder(cfg.AppName),
		encoding: cfg.Encoding,
		logger:   logger,
	}
}

// Export validates, encodes and archives one export. Skipped documents do
// not fail the export; they are listed in the result and the audit record.
func (s *ExportServiceImpl) Export(ctx context.Context, req *ExportRequest) (*ExportOutcome, error) {
	if req.TenantID == "" {
		return nil, ErrMissingTenant
	}
	if req.Type == "" {
		req.Type = export.TypeBookingsOnly
	}
	charset := req.Encoding
	if charset == "" {
		charset = s.encoding
	}
	if _, err := export.EncodeCharset("", charset); err != nil {
		return nil, err
	}

	if err := validateExportRequest(req); err != nil {
		s.logger.Warn("Export rejected",
			"tenant_id", req.TenantID,
			"error", err,
		)
		return &ExportOutcome{Result: &export.Result{Success: false, Warnings: []string{err.Error()}}}, err
	}

	release, acquired, err := s.lock.Acquire(ctx, req.TenantID, req.Range)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrExportInProgress
	}
	defer func() {
		// the request context may already be gone; the lock must still go
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("Failed to release export lock", "tenant_id", req.TenantID, "error", err)
		}
	}()

	input, err := s.loadInput(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.encoder.Encode(input)
	if err != nil {
		return &ExportOutcome{Result: result}, err
	}

	outcome := &ExportOutcome{
		Result:     result,
		Encoding:   charset,
		Contents:   make(map[string][]byte, len(result.Files)),
		Locations:  []string{},
		ExportedAt: time.Now().UTC(),
	}
	for _, f := range result.Files {
		raw, err := export.EncodeCharset(f.Content, charset)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", f.Filename, err)
		}
		outcome.Contents[f.Filename] = raw

		if s.sink != nil {
			location, err := s.sink.Put(ctx, req.TenantID, f.Filename, raw, "text/csv; charset="+charset)
			if err != nil {
				return nil, err
			}
			outcome.Locations = append(outcome.Locations, location)
		}
	}

	record := export.NewRecord(input, result, req.RequestedBy, outcome.ExportedAt)
	record.Locations = outcome.Locations
	record.CorrelationID = req.CorrelationID
	if err := s.records.Append(ctx, record); err != nil {
		return nil, err
	}
	outcome.Record = record

	s.logger.Info("Export completed",
		"tenant_id", req.TenantID,
		"export_id", record.ID.String(),
		"type", string(req.Type),
		"included", result.RecordCount,
		"skipped", len(result.Skipped),
		"lines", result.LineCount,
	)
	return outcome, nil
}

func validateExportRequest(req *ExportRequest) error {
	var violations []string
	var settingsErr *export.InvalidAccountingSettingsError
	for _, err := range []error{req.Settings.Validate(), req.Range.Validate()} {
		if errors.As(err, &settingsErr) {
			violations = append(violations, settingsErr.Violations...)
		}
	}
	if len(violations) > 0 {
		return &export.InvalidAccountingSettingsError{Violations: violations}
	}
	return nil
}

func (s *ExportServiceImpl) loadInput(ctx context.Context, req *ExportRequest) (export.Input, error) {
	docs, err := s.docs.ListByDateRange(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return export.Input{}, err
	}

	ids := lo.Map(docs, func(d *document.FinancialDocument, _ int) uuid.UUID { return d.ID })
	links, err := s.links.ListByDocumentIDs(ctx, req.TenantID, ids)
	if err != nil {
		return export.Input{}, err
	}

	return export.Input{
		TenantID:      req.TenantID,
		Range:         req.Range,
		Type:          req.Type,
		Settings:      req.Settings,
		IncludeUnpaid: req.IncludeUnpaid,
		Documents:     docs,
		Links:         lo.KeyBy(links, func(l *reconciliation.TransactionLink) uuid.UUID { return l.DocumentID }),
	}, nil
}

// History returns the newest records first
func (s *ExportServiceImpl) History(ctx context.Context, tenantID string, limit int) (*ExportHistory, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	records, err := s.records.ListByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}

	history := &ExportHistory{Records: records}
	if len(records) > 0 {
		settings := records[0].Settings
		history.LatestSettings = &settings
	}
	return history, nil
}
