package postgres

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ledger-integrity-pipeline/internal/domain/outbox"
	"github.com/ledger-integrity-pipeline/internal/domain/shared"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var outboxColumns = []string{"id", "event_id", "tenant_id", "event_type", "aggregate_id", "payload", "status", "attempts", "created_at", "last_attempt_at"}

func TestOutboxRepository_WithTx(t *testing.T) {
	repo := &OutboxRepository{
		querier: nil,
		logger:  newTestLogger(),
	}

	mockTx := pgx.Tx(nil)
	txRepo := repo.WithTx(mockTx)

	assert.NotNil(t, txRepo)
	outboxRepo, ok := txRepo.(*OutboxRepository)
	assert.True(t, ok)
	assert.Equal(t, mockTx, outboxRepo.querier)
}

func TestOutboxRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	query := regexp.QuoteMeta(`INSERT INTO document_outbox`)

	t.Run("document event", func(t *testing.T) {
		msg, err := outbox.NewMessage(&shared.DocumentEvent{
			EventType:  shared.EventTypeDocumentFinalized,
			TenantID:   "T1",
			DocumentID: uuid.New(),
		})
		require.NoError(t, err)
		aggregate := msg.AggregateID

		mock.ExpectQuery(query).
			WithArgs(msg.EventID, "T1", shared.EventTypeDocumentFinalized, &aggregate, msg.Payload, shared.OutboxStatusPending, 0, msg.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(17)))

		require.NoError(t, repo.Create(ctx, msg))
		assert.Equal(t, int64(17), msg.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("import event stores null aggregate", func(t *testing.T) {
		msg, err := outbox.NewMessage(&shared.DocumentEvent{
			EventType:     shared.EventTypeBankTransactionsImported,
			TenantID:      "T1",
			ImportedCount: 3,
		})
		require.NoError(t, err)

		mock.ExpectQuery(query).
			WithArgs(msg.EventID, "T1", shared.EventTypeBankTransactionsImported, (*uuid.UUID)(nil), msg.Payload, shared.OutboxStatusPending, 0, msg.CreatedAt).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(18)))

		require.NoError(t, repo.Create(ctx, msg))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate event", func(t *testing.T) {
		msg := &outbox.Message{EventID: uuid.New(), TenantID: "T1"}
		mock.ExpectQuery(query).WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(ctx, msg)
		assert.ErrorAs(t, err, &outbox.ErrDuplicateMessage{})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}
	docID := uuid.New()
	now := time.Now()
	payload := json.RawMessage(`{"event_type":"DOCUMENT_PAID"}`)

	rows := pgxmock.NewRows(outboxColumns).
		AddRow(int64(1), uuid.New(), "T1", shared.EventTypeDocumentPaid, &docID, payload, shared.OutboxStatusPending, 0, now, (*time.Time)(nil)).
		AddRow(int64(2), uuid.New(), "T2", shared.EventTypeBankTransactionsImported, (*uuid.UUID)(nil), payload, shared.OutboxStatusPending, 2, now, &now)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM document_outbox`)).WithArgs(shared.OutboxStatusPending, 10).WillReturnRows(rows)

	messages, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, docID, messages[0].AggregateID)
	assert.Equal(t, uuid.Nil, messages[1].AggregateID)
	assert.Equal(t, 2, messages[1].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_StatusAndAttempts(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectExec(regexp.QuoteMeta(`SET status = $1, last_attempt_at = $2`)).
		WithArgs(shared.OutboxStatusProcessed, pgxmock.AnyArg(), int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateStatus(ctx, 5, shared.OutboxStatusProcessed))

	mock.ExpectExec(regexp.QuoteMeta(`SET attempts = attempts + 1`)).
		WithArgs(pgxmock.AnyArg(), int64(6)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorAs(t, repo.IncrementAttempts(ctx, 6), &outbox.ErrMessageNotFound{})

	assert.NoError(t, mock.ExpectationsWereMet())
}
