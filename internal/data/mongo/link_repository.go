package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

const (
	// LinkCollectionName is the name of the transaction link collection in MongoDB
	LinkCollectionName = "transaction_links"
)

// LinkRepository implements the reconciliation.Repository interface for MongoDB
type LinkRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewLinkRepository creates a new MongoDB transaction link repository
func NewLinkRepository(logger *slog.Logger, db *mongo.Database) *LinkRepository {
	return &LinkRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the unique indexes that make a transaction and a
// document each linkable at most once per tenant.
func (r *LinkRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(LinkCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_tenant_transaction"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "document_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ux_tenant_document"),
		},
		{
			Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "link_date", Value: -1}},
			Options: options.Index().SetName("ix_tenant_link_date"),
		},
	})
	if err != nil {
		r.logger.Error("Failed to create transaction link indexes", "error", err)
		return fmt.Errorf("failed to create transaction link indexes: %w", err)
	}
	return nil
}

// Create inserts the link as a single-document write. The compound _id and
// the unique indexes turn every concurrent duplicate into ErrDuplicateLink.
func (r *LinkRepository) Create(ctx context.Context, link *reconciliation.TransactionLink) error {
	_, err := r.db.Collection(LinkCollectionName).InsertOne(ctx, link)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return reconciliation.ErrDuplicateLink{LinkID: link.ID}
		}
		r.logger.Error("Failed to create transaction link",
			"link_id", link.ID,
			"tenant_id", link.TenantID,
			"error", err)
		return fmt.Errorf("failed to create transaction link: %w", err)
	}

	return nil
}

// GetByDocumentID returns the link of a document.
// Returns ErrLinkNotFound if the document is not linked.
func (r *LinkRepository) GetByDocumentID(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error) {
	filter := bson.M{"tenant_id": tenantID, "document_id": documentID}

	var link reconciliation.TransactionLink
	err := r.db.Collection(LinkCollectionName).FindOne(ctx, filter).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reconciliation.ErrLinkNotFound{LinkID: documentID.String()}
		}
		r.logger.Error("Failed to get transaction link",
			"document_id", documentID.String(),
			"tenant_id", tenantID,
			"error", err)
		return nil, fmt.Errorf("failed to get transaction link: %w", err)
	}

	return &link, nil
}

// ListByDocumentIDs returns the links of the given documents; unlinked
// documents are simply absent from the result.
func (r *LinkRepository) ListByDocumentIDs(ctx context.Context, tenantID string, documentIDs []uuid.UUID) ([]*reconciliation.TransactionLink, error) {
	if len(documentIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{"tenant_id": tenantID, "document_id": bson.M{"$in": documentIDs}}
	cursor, err := r.db.Collection(LinkCollectionName).Find(ctx, filter)
	if err != nil {
		r.logger.Error("Failed to list transaction links",
			"tenant_id", tenantID,
			"error", err)
		return nil, fmt.Errorf("failed to list transaction links: %w", err)
	}
	defer cursor.Close(ctx)

	var links []*reconciliation.TransactionLink
	if err := cursor.All(ctx, &links); err != nil {
		r.logger.Error("Failed to decode transaction links",
			"tenant_id", tenantID,
			"error", err)
		return nil, fmt.Errorf("failed to decode transaction links: %w", err)
	}

	return links, nil
}

// LinkedTransactionIDs loads the set of transactions already linked for a
// tenant. The matcher reads it once per batch.
func (r *LinkRepository) LinkedTransactionIDs(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 0, "transaction_id": 1})
	cursor, err := r.db.Collection(LinkCollectionName).Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		r.logger.Error("Failed to load linked transaction ids",
			"tenant_id", tenantID,
			"error", err)
		return nil, fmt.Errorf("failed to load linked transaction ids: %w", err)
	}
	defer cursor.Close(ctx)

	linked := make(map[string]struct{})
	for cursor.Next(ctx) {
		var row struct {
			TransactionID string `bson:"transaction_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode linked transaction id: %w", err)
		}
		linked[row.TransactionID] = struct{}{}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked transaction ids: %w", err)
	}

	return linked, nil
}

// UpdateBookingStatus changes the only mutable field of a link.
func (r *LinkRepository) UpdateBookingStatus(ctx context.Context, tenantID, linkID string, status reconciliation.BookingStatus) error {
	filter := bson.M{"_id": linkID, "tenant_id": tenantID}
	update := bson.M{"$set": bson.M{"booking_status": status}}

	result, err := r.db.Collection(LinkCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to update link booking status",
			"link_id", linkID,
			"status", string(status),
			"error", err)
		return fmt.Errorf("failed to update link booking status: %w", err)
	}

	if result.MatchedCount == 0 {
		return reconciliation.ErrLinkNotFound{LinkID: linkID}
	}

	return nil
}
