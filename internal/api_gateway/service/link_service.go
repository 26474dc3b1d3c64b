package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledger-integrity-pipeline/internal/domain/reconciliation"
)

// LinkServiceImpl implements LinkService
type LinkServiceImpl struct {
	links  reconciliation.Repository
	logger *slog.Logger
}

// NewLinkService creates a new link service
func NewLinkService(logger *slog.Logger, links reconciliation.Repository) *LinkServiceImpl {
	return &LinkServiceImpl{links: links, logger: logger}
}

// GetByDocument returns the link of a document
func (s *LinkServiceImpl) GetByDocument(ctx context.Context, tenantID string, documentID uuid.UUID) (*reconciliation.TransactionLink, error) {
	return s.links.GetByDocumentID(ctx, tenantID, documentID)
}

// UpdateBookingStatus flips a link between open and booked. Links are
// otherwise immutable.
func (s *LinkServiceImpl) UpdateBookingStatus(ctx context.Context, tenantID string, documentID uuid.UUID, status reconciliation.BookingStatus) (*reconciliation.TransactionLink, error) {
	if _, err := reconciliation.ParseBookingStatus(string(status)); err != nil {
		return nil, err
	}

	link, err := s.links.GetByDocumentID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if link.BookingStatus == status {
		return link, nil
	}

	if err := s.links.UpdateBookingStatus(ctx, tenantID, link.ID, status); err != nil {
		return nil, err
	}
	link.BookingStatus = status

	s.logger.Info("Link booking status updated",
		"tenant_id", tenantID,
		"link_id", link.ID,
		"status", string(status),
	)
	return link, nil
}
