package document

import (
	"errors"
	"testing"

	"github.com/ledger-integrity-pipeline/internal/domain/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDraft(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		doc, err := NewDraft("T1", TypeInvoice, "eur")
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, doc.Status)
		assert.Equal(t, "EUR", doc.Currency)
		assert.Empty(t, doc.DocumentNumber)
		assert.Equal(t, 1, doc.Version)
	})

	t.Run("DefaultsCurrency", func(t *testing.T) {
		doc, err := NewDraft("T1", TypeReceipt, "")
		require.NoError(t, err)
		assert.Equal(t, "EUR", doc.Currency)
	})

	t.Run("RejectsEmptyTenant", func(t *testing.T) {
		_, err := NewDraft("", TypeInvoice, "EUR")
		assert.ErrorIs(t, err, ErrEmptyTenant)
	})

	t.Run("RejectsMalformedCurrency", func(t *testing.T) {
		for _, c := range []string{`A"B`, "EU", "EURO", "E1R", "€UR"} {
			_, err := NewDraft("T1", TypeInvoice, c)
			assert.ErrorIs(t, err, ErrInvalidCurrency, c)
		}
	})

	t.Run("RejectsUnknownType", func(t *testing.T) {
		_, err := NewDraft("T1", Type("payslip"), "EUR")
		assert.ErrorIs(t, err, ErrInvalidType)
	})
}

func TestFinalize(t *testing.T) {
	doc, _ := NewDraft("T1", TypeInvoice, "EUR")

	require.NoError(t, doc.Finalize("RE-1000"))
	assert.Equal(t, StatusFinalized, doc.Status)
	assert.Equal(t, "RE-1000", doc.DocumentNumber)
	assert.Equal(t, 2, doc.Version)

	err := doc.Finalize("RE-1001")
	assert.True(t, errors.Is(err, ErrInvalidTransition{}))
	assert.Equal(t, "RE-1000", doc.DocumentNumber, "number must never change once issued")
}

func TestLifecycle(t *testing.T) {
	doc, _ := NewDraft("T1", TypeInvoice, "EUR")
	assert.ErrorIs(t, doc.MarkPaid(), ErrInvalidTransition{})

	require.NoError(t, doc.Finalize("RE-1000"))
	assert.ErrorIs(t, doc.MarkBooked(), ErrInvalidTransition{})
	require.NoError(t, doc.MarkPaid())
	require.NoError(t, doc.MarkBooked())
	assert.Equal(t, StatusBooked, doc.Status)
}

func TestCancel(t *testing.T) {
	t.Run("CreatesStornoReferencingOriginal", func(t *testing.T) {
		doc, _ := NewDraft("T1", TypeInvoice, "EUR")
		doc.Amount = 12345
		doc.CounterpartyName = "Mustermann GmbH"
		require.NoError(t, doc.Finalize("RE-1000"))

		storno, err := doc.Cancel()
		require.NoError(t, err)

		assert.Equal(t, StatusCancelled, doc.Status)
		assert.Equal(t, "RE-1000", doc.DocumentNumber, "cancelled document keeps its number")

		assert.True(t, storno.IsStorno)
		assert.Equal(t, "RE-1000", storno.OriginalNumber)
		assert.Empty(t, storno.DocumentNumber)
		assert.Equal(t, StatusDraft, storno.Status)
		assert.NotEqual(t, doc.ID, storno.ID)
		assert.Equal(t, int64(12345), storno.Amount)
		assert.Equal(t, "Mustermann GmbH", storno.CounterpartyName)
	})

	t.Run("RejectsDraft", func(t *testing.T) {
		doc, _ := NewDraft("T1", TypeInvoice, "EUR")
		_, err := doc.Cancel()
		assert.ErrorIs(t, err, ErrInvalidTransition{})
	})

	t.Run("RejectsStornoOfStorno", func(t *testing.T) {
		doc, _ := NewDraft("T1", TypeInvoice, "EUR")
		require.NoError(t, doc.Finalize("RE-1000"))
		storno, err := doc.Cancel()
		require.NoError(t, err)
		require.NoError(t, storno.Finalize("ST-1"))

		_, err = storno.Cancel()
		assert.ErrorIs(t, err, ErrInvalidTransition{})
	})
}

func TestSequenceType(t *testing.T) {
	assert.Equal(t, sequence.TypeInvoice, TypeInvoice.SequenceType())
	assert.Equal(t, sequence.TypeExpense, TypeReceipt.SequenceType())
	assert.Equal(t, sequence.TypeExpense, TypeExpense.SequenceType())
	assert.Equal(t, sequence.TypeQuote, TypeQuote.SequenceType())
	assert.Equal(t, sequence.TypeDeliveryNote, TypeDeliveryNote.SequenceType())
	assert.Equal(t, sequence.TypeCancellation, StornoSequenceType())
}
