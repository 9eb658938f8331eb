package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ViolationKind names the broken ledger property.
type ViolationKind string

const (
	// ViolationConservation means closing != round2(opening + royalties - expenses - payments).
	ViolationConservation ViolationKind = "conservation"
	// ViolationContinuity means an entry does not open at its predecessor's closing balance.
	ViolationContinuity ViolationKind = "continuity"
	// ViolationDuplicatePeriod means a payee has two entries for one quarter.
	ViolationDuplicatePeriod ViolationKind = "duplicate_period"
)

// Violation is one failed self-check.
type Violation struct {
	Kind        ViolationKind   `json:"kind"`
	PayeeID     uuid.UUID       `json:"payee_id"`
	PeriodLabel string          `json:"period_label"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
}

// Verify checks conservation and continuity per payee. Input order does not matter.
func Verify(entries []Entry) []Violation {
	var out []Violation
	byPayee := groupChronological(entries)
	for _, payee := range sortedPayees(byPayee) {
		list := byPayee[payee]
		for i, e := range list {
			if expected := e.ExpectedClosing(); !e.ClosingBalance.Equal(expected) {
				out = append(out, Violation{
					Kind:        ViolationConservation,
					PayeeID:     payee,
					PeriodLabel: e.Period().Label(),
					Expected:    expected,
					Actual:      e.ClosingBalance,
				})
			}
			if i == 0 {
				continue
			}
			prev := list[i-1]
			if prev.Period() == e.Period() {
				out = append(out, Violation{
					Kind:        ViolationDuplicatePeriod,
					PayeeID:     payee,
					PeriodLabel: e.Period().Label(),
				})
				continue
			}
			if !e.OpeningBalance.Equal(prev.ClosingBalance) {
				out = append(out, Violation{
					Kind:        ViolationContinuity,
					PayeeID:     payee,
					PeriodLabel: e.Period().Label(),
					Expected:    prev.ClosingBalance,
					Actual:      e.OpeningBalance,
				})
			}
		}
	}
	return out
}

// CountByKind tallies violations per kind.
func CountByKind(violations []Violation) map[ViolationKind]int {
	out := make(map[ViolationKind]int)
	for _, v := range violations {
		out[v.Kind]++
	}
	return out
}
