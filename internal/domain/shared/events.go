package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEventType = errors.New("invalid event type")
	ErrMissingTenant    = errors.New("tenant id is required")
)

// EventType defines the document lifecycle events published to Kafka
type EventType string

const (
	EventTypeDocumentFinalized        EventType = "DOCUMENT_FINALIZED"
	EventTypeDocumentPaid             EventType = "DOCUMENT_PAID"
	EventTypeBankTransactionsImported EventType = "BANK_TRANSACTIONS_IMPORTED"
)

// IsValid reports whether the event type is one the worker knows how to handle
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeDocumentFinalized, EventTypeDocumentPaid, EventTypeBankTransactionsImported:
		return true
	}
	return false
}

// DocumentEvent defines a Kafka message that triggers reconciliation
type DocumentEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     EventType `json:"event_type"`
	TenantID      string    `json:"tenant_id"`
	DocumentID    uuid.UUID `json:"document_id,omitempty"`
	ImportedCount int       `json:"imported_count,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Validate checks the event carries what its type requires
func (e *DocumentEvent) Validate() error {
	if !e.EventType.IsValid() {
		return ErrInvalidEventType
	}
	if e.TenantID == "" {
		return ErrMissingTenant
	}
	if e.EventType != EventTypeBankTransactionsImported && e.DocumentID == uuid.Nil {
		return errors.New("document id is required for " + string(e.EventType))
	}
	return nil
}

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
