package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/payees"
	"github.com/royaltyops/royaltyops/internal/payouts"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return d
}

func quarterStart(year, q int) *time.Time {
	ts := time.Date(year, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return &ts
}

func payout(t *testing.T, payee uuid.UUID, year, q int, gross, expenses, due, status string) payouts.Record {
	t.Helper()
	p := payee
	return payouts.Record{
		ID:             uuid.New(),
		PayeeID:        &p,
		GrossRoyalties: dec(t, gross),
		TotalExpenses:  dec(t, expenses),
		AmountDue:      dec(t, due),
		Status:         status,
		PeriodStart:    quarterStart(year, q),
		CreatedAt:      time.Date(2025, time.January, 2, 0, 0, 0, 0, time.UTC),
	}
}

func directory(names map[uuid.UUID]string) payees.Directory {
	list := make([]payees.Payee, 0, len(names))
	for id, name := range names {
		list = append(list, payees.Payee{ID: id, Name: name, AgreementName: name + " agreement"})
	}
	return payees.NewDirectory(list)
}

// persistFrom turns a rebuilt ledger into normalised persisted entries.
func persistFrom(t *testing.T, entries []Entry, dir payees.Directory) []Entry {
	t.Helper()
	out, err := NormalizePersisted(ToPersisted(entries, time.Now()), dir)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return out
}
