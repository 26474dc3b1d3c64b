package export

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ExportRecord is the append-only audit row of one export invocation.
type ExportRecord struct {
	ID            uuid.UUID          `json:"id" bson:"_id"`
	TenantID      string             `json:"tenant_id" bson:"tenant_id"`
	ExportType    Type               `json:"export_type" bson:"export_type"`
	Range         DateRange          `json:"range" bson:"range"`
	IncludeUnpaid bool               `json:"include_unpaid" bson:"include_unpaid"`
	Success       bool               `json:"success" bson:"success"`
	IncludedCount int                `json:"included_count" bson:"included_count"`
	SkippedCount  int                `json:"skipped_count" bson:"skipped_count"`
	LineCount     int                `json:"line_count" bson:"line_count"`
	Skipped       []SkippedDocument  `json:"skipped" bson:"skipped"`
	Files         []File             `json:"files" bson:"files"`
	Locations     []string           `json:"locations,omitempty" bson:"locations,omitempty"`
	Warnings      []string           `json:"warnings" bson:"warnings"`
	Settings      AccountingSettings `json:"accounting_settings" bson:"accounting_settings"`
	ExportedBy    string             `json:"exported_by" bson:"exported_by"`
	CorrelationID string             `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	ExportedAt    time.Time          `json:"exported_at" bson:"exported_at"`
}

// NewRecord builds the audit row for an encoder result
func NewRecord(in Input, res *Result, exportedBy string, exportedAt time.Time) *ExportRecord {
	rec := &ExportRecord{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		ExportType:    in.Type,
		Range:         in.Range,
		IncludeUnpaid: in.IncludeUnpaid,
		Settings:      in.Settings,
		ExportedBy:    exportedBy,
		ExportedAt:    exportedAt,
		Skipped:       []SkippedDocument{},
		Files:         []File{},
		Warnings:      []string{},
	}
	if res != nil {
		rec.Success = res.Success
		rec.IncludedCount = res.RecordCount
		rec.SkippedCount = len(res.Skipped)
		rec.LineCount = res.LineCount
		if res.Skipped != nil {
			rec.Skipped = res.Skipped
		}
		if res.Files != nil {
			rec.Files = res.Files
		}
		if res.Warnings != nil {
			rec.Warnings = res.Warnings
		}
	}
	return rec
}

// RecordRepository stores export audit rows. There is no update or delete.
type RecordRepository interface {
	Append(ctx context.Context, rec *ExportRecord) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*ExportRecord, error)
}
