package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ledger-integrity-pipeline/internal/domain/export"
)

const (
	// ExportRecordCollectionName is the name of the export audit collection in MongoDB
	ExportRecordCollectionName = "export_records"

	defaultHistoryLimit = 50
)

// ExportRecordRepository implements export.RecordRepository for MongoDB.
// Records are only ever inserted.
type ExportRecordRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewExportRecordRepository creates a new MongoDB export record repository
func NewExportRecordRepository(logger *slog.Logger, db *mongo.Database) *ExportRecordRepository {
	return &ExportRecordRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the history lookup index
func (r *ExportRecordRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(ExportRecordCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "exported_at", Value: -1}},
		Options: options.Index().SetName("ix_tenant_exported_at"),
	})
	if err != nil {
		r.logger.Error("Failed to create export record index", "error", err)
		return fmt.Errorf("failed to create export record index: %w", err)
	}
	return nil
}

// Append stores a new audit record
func (r *ExportRecordRepository) Append(ctx context.Context, rec *export.ExportRecord) error {
	if _, err := r.db.Collection(ExportRecordCollectionName).InsertOne(ctx, rec); err != nil {
		r.logger.Error("Failed to append export record",
			"export_id", rec.ID.String(),
			"tenant_id", rec.TenantID,
			"error", err)
		return fmt.Errorf("failed to append export record: %w", err)
	}
	return nil
}

// ListByTenant returns the newest records first
func (r *ExportRecordRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*export.ExportRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "exported_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.db.Collection(ExportRecordCollectionName).Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		r.logger.Error("Failed to list export records",
			"tenant_id", tenantID,
			"error", err)
		return nil, fmt.Errorf("failed to list export records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*export.ExportRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		r.logger.Error("Failed to decode export records",
			"tenant_id", tenantID,
			"error", err)
		return nil, fmt.Errorf("failed to decode export records: %w", err)
	}

	return records, nil
}
