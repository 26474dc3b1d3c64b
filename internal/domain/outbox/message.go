package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
)

// Message holds a document event until the relay has published it. It is
// written in the same database transaction as the state change it announces.
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	TenantID      string              `json:"tenant_id"`
	EventType     shared.EventType    `json:"event_type"`
	AggregateID   uuid.UUID           `json:"aggregate_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage wraps a validated event
func NewMessage(event *shared.DocumentEvent) (*Message, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:     event.EventID,
		TenantID:    event.TenantID,
		EventType:   event.EventType,
		AggregateID: event.DocumentID,
		Payload:     payload,
		Status:      shared.OutboxStatusPending,
		Attempts:    0,
		CreatedAt:   time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// Event decodes the payload
func (m *Message) Event() (*shared.DocumentEvent, error) {
	var event shared.DocumentEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
