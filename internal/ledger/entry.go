package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/payees"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Source identifies where ledger entries came from.
type Source string

const (
	// SourcePersisted marks rows read from the balance_entries table.
	SourcePersisted Source = "persisted"
	// SourceEphemeral marks rows rebuilt from payouts on demand.
	SourceEphemeral Source = "ephemeral"
)

// ErrInvalidRow is returned when a persisted row cannot be normalised.
var ErrInvalidRow = errors.New("ledger: invalid persisted row")

// Entry is one payee's balance movement for one quarter.
type Entry struct {
	PayeeID         uuid.UUID       `json:"payee_id"`
	PayeeName       string          `json:"payee_name"`
	AgreementName   string          `json:"agreement_name,omitempty"`
	Year            int             `json:"year"`
	Quarter         int             `json:"quarter"`
	PeriodLabel     string          `json:"period_label"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	RoyaltiesAmount decimal.Decimal `json:"royalties_amount"`
	ExpensesAmount  decimal.Decimal `json:"expenses_amount"`
	PaymentsAmount  decimal.Decimal `json:"payments_amount"`
	ClosingBalance  decimal.Decimal `json:"closing_balance"`
	IsCalculated    bool            `json:"is_calculated"`
	Source          Source          `json:"source"`
}

// Period returns the entry quarter.
func (e Entry) Period() shared.Quarter {
	return shared.Quarter{Year: e.Year, Q: e.Quarter}
}

// ExpectedClosing applies the balance formula to the entry's own amounts.
func (e Entry) ExpectedClosing() decimal.Decimal {
	return shared.Round2(e.OpeningBalance.Add(e.RoyaltiesAmount).Sub(e.ExpensesAmount).Sub(e.PaymentsAmount))
}

// PersistedRow mirrors balance_entries, where amounts and labels may be NULL.
type PersistedRow struct {
	PayeeID        uuid.UUID
	Year           int
	Quarter        int
	PeriodLabel    *string
	OpeningBalance decimal.NullDecimal
	Royalties      decimal.NullDecimal
	Expenses       decimal.NullDecimal
	Payments       decimal.NullDecimal
	ClosingBalance decimal.NullDecimal
	IsCalculated   bool
	GeneratedAt    time.Time
}

// NormalizePersisted maps stored rows into entries. NULL amounts read as zero,
// a missing label is derived from the quarter and names come from dir.
func NormalizePersisted(rows []PersistedRow, dir payees.Directory) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		period, err := shared.NewQuarter(row.Year, row.Quarter)
		if err != nil {
			return nil, fmt.Errorf("%w: payee %s: %w", ErrInvalidRow, row.PayeeID, err)
		}
		label := period.Label()
		if row.PeriodLabel != nil && *row.PeriodLabel != "" {
			label = *row.PeriodLabel
		}
		out = append(out, Entry{
			PayeeID:         row.PayeeID,
			PayeeName:       dir.Name(row.PayeeID),
			AgreementName:   dir.Agreement(row.PayeeID),
			Year:            period.Year,
			Quarter:         period.Q,
			PeriodLabel:     label,
			OpeningBalance:  nullToZero(row.OpeningBalance),
			RoyaltiesAmount: nullToZero(row.Royalties),
			ExpensesAmount:  nullToZero(row.Expenses),
			PaymentsAmount:  nullToZero(row.Payments),
			ClosingBalance:  nullToZero(row.ClosingBalance),
			IsCalculated:    row.IsCalculated,
			Source:          SourcePersisted,
		})
	}
	return out, nil
}

// ToPersisted converts entries into rows for storage.
func ToPersisted(entries []Entry, generatedAt time.Time) []PersistedRow {
	rows := make([]PersistedRow, 0, len(entries))
	for _, e := range entries {
		label := e.PeriodLabel
		rows = append(rows, PersistedRow{
			PayeeID:        e.PayeeID,
			Year:           e.Year,
			Quarter:        e.Quarter,
			PeriodLabel:    &label,
			OpeningBalance: decimal.NewNullDecimal(e.OpeningBalance),
			Royalties:      decimal.NewNullDecimal(e.RoyaltiesAmount),
			Expenses:       decimal.NewNullDecimal(e.ExpensesAmount),
			Payments:       decimal.NewNullDecimal(e.PaymentsAmount),
			ClosingBalance: decimal.NewNullDecimal(e.ClosingBalance),
			IsCalculated:   true,
			GeneratedAt:    generatedAt,
		})
	}
	return rows
}

func nullToZero(d decimal.NullDecimal) decimal.Decimal {
	if !d.Valid {
		return decimal.Zero
	}
	return d.Decimal
}

// SortNewestFirst orders entries by period descending, then payee name and id.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.Period().Compare(b.Period()); c != 0 {
			return c > 0
		}
		if a.PayeeName != b.PayeeName {
			return a.PayeeName < b.PayeeName
		}
		return a.PayeeID.String() < b.PayeeID.String()
	})
}

// groupChronological splits entries per payee, each slice sorted ascending.
func groupChronological(entries []Entry) map[uuid.UUID][]Entry {
	out := make(map[uuid.UUID][]Entry)
	for _, e := range entries {
		out[e.PayeeID] = append(out[e.PayeeID], e)
	}
	for id := range out {
		list := out[id]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Period().Before(list[j].Period())
		})
	}
	return out
}
