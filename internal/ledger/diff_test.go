package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffIdenticalLedgers(t *testing.T) {
	p := uuid.New()
	entries := []Entry{entry(t, p, 2024, 1, "0", "10", "0", "0", "10")}
	assert.Empty(t, Diff(entries, entries))
}

func TestDiffReportsEachKind(t *testing.T) {
	p := uuid.New()
	persisted := []Entry{
		entry(t, p, 2024, 1, "0", "10", "0", "0", "10"),
		entry(t, p, 2024, 2, "10", "5", "0", "0", "15"),
	}
	rebuilt := []Entry{
		entry(t, p, 2024, 1, "0", "12", "0", "0", "12"),
		entry(t, p, 2024, 3, "12", "0", "0", "0", "12"),
	}

	drift := Diff(persisted, rebuilt)
	require.Len(t, drift, 4)
	assert.Equal(t, DriftAmount, drift[0].Kind)
	assert.Equal(t, "closing_balance", drift[0].Field)
	assert.Equal(t, DriftAmount, drift[1].Kind)
	assert.Equal(t, "royalties_amount", drift[1].Field)
	assert.Equal(t, "12", drift[1].Rebuilt.String())
	assert.Equal(t, DriftMissingRebuilt, drift[2].Kind)
	assert.Equal(t, "Q2 2024", drift[2].PeriodLabel)
	assert.Equal(t, DriftMissingPersisted, drift[3].Kind)
	assert.Equal(t, "Q3 2024", drift[3].PeriodLabel)
}

func TestDiffIgnoresSubCentNoise(t *testing.T) {
	p := uuid.New()
	a := []Entry{entry(t, p, 2024, 1, "0", "10.001", "0", "0", "10")}
	b := []Entry{entry(t, p, 2024, 1, "0", "10.004", "0", "0", "10")}
	assert.Empty(t, Diff(a, b))
}
