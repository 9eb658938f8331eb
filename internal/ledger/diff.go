package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/shared"
)

// DriftKind classifies a difference between persisted and rebuilt ledgers.
type DriftKind string

const (
	// DriftMissingPersisted means the rebuild has a period the stored ledger lacks.
	DriftMissingPersisted DriftKind = "missing_persisted"
	// DriftMissingRebuilt means the stored ledger has a period no payout supports.
	DriftMissingRebuilt DriftKind = "missing_rebuilt"
	// DriftAmount means both have the period but an amount differs.
	DriftAmount DriftKind = "amount"
)

// Drift is one persisted-versus-rebuilt difference.
type Drift struct {
	Kind        DriftKind       `json:"kind"`
	PayeeID     uuid.UUID       `json:"payee_id"`
	PeriodLabel string          `json:"period_label"`
	Field       string          `json:"field,omitempty"`
	Persisted   decimal.Decimal `json:"persisted"`
	Rebuilt     decimal.Decimal `json:"rebuilt"`

	period shared.Quarter
}

// Diff compares two ledgers period by period. Amounts are compared at cent precision.
func Diff(persisted, rebuilt []Entry) []Drift {
	left := indexByPeriod(persisted)
	right := indexByPeriod(rebuilt)

	var out []Drift
	for key, p := range left {
		r, ok := right[key]
		if !ok {
			out = append(out, Drift{Kind: DriftMissingRebuilt, PayeeID: key.payee, PeriodLabel: key.period.Label(), Persisted: p.ClosingBalance, period: key.period})
			continue
		}
		for _, f := range amountFields {
			pv, rv := f.get(p), f.get(r)
			if !shared.MoneyEqual(pv, rv) {
				out = append(out, Drift{Kind: DriftAmount, PayeeID: key.payee, PeriodLabel: key.period.Label(), Field: f.name, Persisted: pv, Rebuilt: rv, period: key.period})
			}
		}
	}
	for key, r := range right {
		if _, ok := left[key]; !ok {
			out = append(out, Drift{Kind: DriftMissingPersisted, PayeeID: key.payee, PeriodLabel: key.period.Label(), Rebuilt: r.ClosingBalance, period: key.period})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PayeeID != b.PayeeID {
			return a.PayeeID.String() < b.PayeeID.String()
		}
		if c := a.period.Compare(b.period); c != 0 {
			return c < 0
		}
		return a.Field < b.Field
	})
	return out
}

type amountField struct {
	name string
	get  func(Entry) decimal.Decimal
}

var amountFields = []amountField{
	{"opening_balance", func(e Entry) decimal.Decimal { return e.OpeningBalance }},
	{"royalties_amount", func(e Entry) decimal.Decimal { return e.RoyaltiesAmount }},
	{"expenses_amount", func(e Entry) decimal.Decimal { return e.ExpensesAmount }},
	{"payments_amount", func(e Entry) decimal.Decimal { return e.PaymentsAmount }},
	{"closing_balance", func(e Entry) decimal.Decimal { return e.ClosingBalance }},
}

func indexByPeriod(entries []Entry) map[periodKey]Entry {
	out := make(map[periodKey]Entry, len(entries))
	for _, e := range entries {
		out[periodKey{payee: e.PayeeID, period: e.Period()}] = e
	}
	return out
}

func sortedPayees[T any](m map[uuid.UUID]T) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}
