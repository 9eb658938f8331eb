package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePersistedFillsGaps(t *testing.T) {
	p := uuid.New()
	dir := directory(map[uuid.UUID]string{p: "Ada"})
	rows := []PersistedRow{{
		PayeeID:        p,
		Year:           2024,
		Quarter:        3,
		Royalties:      decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		ClosingBalance: decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
	}}

	entries, err := NormalizePersisted(rows, dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "Q3 2024", e.PeriodLabel)
	assert.Equal(t, "Ada", e.PayeeName)
	assert.True(t, e.OpeningBalance.IsZero())
	assert.True(t, e.ExpensesAmount.IsZero())
	assert.Equal(t, SourcePersisted, e.Source)
	assert.False(t, e.IsCalculated)
}

func TestNormalizePersistedKeepsStoredLabel(t *testing.T) {
	label := "2024 Q3"
	entries, err := NormalizePersisted([]PersistedRow{{PayeeID: uuid.New(), Year: 2024, Quarter: 3, PeriodLabel: &label}}, nil)
	require.NoError(t, err)
	assert.Equal(t, label, entries[0].PeriodLabel)
}

func TestNormalizePersistedRejectsBadQuarter(t *testing.T) {
	_, err := NormalizePersisted([]PersistedRow{{PayeeID: uuid.New(), Year: 2024, Quarter: 5}}, nil)
	require.ErrorIs(t, err, ErrInvalidRow)
}

func TestToPersistedRoundTrip(t *testing.T) {
	p := uuid.New()
	in := []Entry{entry(t, p, 2024, 1, "0", "10", "1", "2", "7")}
	in[0].PeriodLabel = "Q1 2024"
	rows := ToPersisted(in, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsCalculated)

	out, err := NormalizePersisted(rows, nil)
	require.NoError(t, err)
	assert.Empty(t, Diff(in, out))
}
