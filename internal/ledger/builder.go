package ledger

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/payees"
	"github.com/royaltyops/royaltyops/internal/payouts"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Ledger holds each payee's entries in chronological order.
type Ledger map[uuid.UUID][]Entry

// Entries flattens the ledger newest-first for presentation.
func (l Ledger) Entries() []Entry {
	var out []Entry
	for _, list := range l {
		out = append(out, list...)
	}
	SortNewestFirst(out)
	return out
}

// Payees returns the number of payees with at least one entry.
func (l Ledger) Payees() int {
	return len(l)
}

type periodKey struct {
	payee  uuid.UUID
	period shared.Quarter
}

type accumulator struct {
	royalties decimal.Decimal
	expenses  decimal.Decimal
	payments  decimal.Decimal
}

// BuildFromPayouts aggregates payouts per payee and quarter and walks each
// payee's quarters in ascending order carrying the running balance. Records
// without a payee are skipped.
func BuildFromPayouts(records []payouts.Record, dir payees.Directory, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	sums := make(map[periodKey]*accumulator)
	for _, rec := range records {
		if !rec.HasPayee() {
			logger.Warn("payout without payee skipped", slog.String("payout_id", rec.ID.String()))
			continue
		}
		key := periodKey{payee: *rec.PayeeID, period: rec.Quarter()}
		acc, ok := sums[key]
		if !ok {
			acc = &accumulator{}
			sums[key] = acc
		}
		acc.royalties = acc.royalties.Add(rec.GrossRoyalties)
		acc.expenses = acc.expenses.Add(rec.TotalExpenses)
		if rec.IsPaid() {
			acc.payments = acc.payments.Add(rec.AmountDue)
		}
	}

	var flat []Entry
	for key, acc := range sums {
		flat = append(flat, Entry{
			PayeeID:         key.payee,
			PayeeName:       dir.Name(key.payee),
			AgreementName:   dir.Agreement(key.payee),
			Year:            key.period.Year,
			Quarter:         key.period.Q,
			PeriodLabel:     key.period.Label(),
			RoyaltiesAmount: acc.royalties,
			ExpensesAmount:  acc.expenses,
			PaymentsAmount:  acc.payments,
			IsCalculated:    true,
			Source:          SourceEphemeral,
		})
	}

	ledger := Ledger(groupChronological(flat))
	for payee, list := range ledger {
		running := decimal.Zero
		for i := range list {
			list[i].OpeningBalance = running
			list[i].ClosingBalance = list[i].ExpectedClosing()
			running = list[i].ClosingBalance
		}
		ledger[payee] = list
	}
	return ledger
}
