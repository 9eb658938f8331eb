package ledger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/payees"
	"github.com/royaltyops/royaltyops/internal/payouts"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Mode controls how aggressively persisted ledgers are treated as stale.
type Mode string

const (
	// ModePayees rebuilds only when payouts reference more payees than the persisted rows.
	ModePayees Mode = "payees"
	// ModeTotals additionally rebuilds when per-payee totals diverge or the chain is broken.
	ModeTotals Mode = "totals"
)

// ErrInvalidMode is returned by ParseMode.
var ErrInvalidMode = errors.New("ledger: invalid staleness mode")

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePayees, ModeTotals:
		return Mode(s), nil
	case "":
		return ModeTotals, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Reason explains a selection decision.
type Reason string

const (
	ReasonFresh          Reason = "fresh"
	ReasonNoPersisted    Reason = "no_persisted"
	ReasonMissingPayees  Reason = "missing_payees"
	ReasonTotalsDiverged Reason = "totals_diverged"
	ReasonChainBroken    Reason = "chain_broken"
)

// Selection is the chosen ledger, newest-first.
type Selection struct {
	Entries []Entry `json:"entries"`
	Source  Source  `json:"source"`
	Reason  Reason  `json:"reason"`
}

// SelectSource decides between normalised persisted entries and a rebuild from
// payouts. Payouts referencing more distinct payees than the persisted rows
// always force a rebuild.
func SelectSource(persisted []Entry, records []payouts.Record, dir payees.Directory, mode Mode, logger *slog.Logger) Selection {
	if logger == nil {
		logger = slog.Default()
	}

	payoutPayees := payouts.DistinctPayees(records)
	persistedPayees := make(map[uuid.UUID]struct{})
	for _, e := range persisted {
		persistedPayees[e.PayeeID] = struct{}{}
	}

	reason := ReasonFresh
	switch {
	case len(payoutPayees) > len(persistedPayees) && len(persistedPayees) == 0:
		reason = ReasonNoPersisted
	case len(payoutPayees) > len(persistedPayees):
		reason = ReasonMissingPayees
	case mode == ModeTotals && len(Verify(persisted)) > 0:
		reason = ReasonChainBroken
	case mode == ModeTotals && totalsDiverge(persisted, records):
		reason = ReasonTotalsDiverged
	}

	if reason == ReasonFresh {
		out := append([]Entry(nil), persisted...)
		SortNewestFirst(out)
		return Selection{Entries: out, Source: SourcePersisted, Reason: reason}
	}

	logger.Info("persisted ledger stale, rebuilding from payouts",
		slog.String("reason", string(reason)),
		slog.Int("persisted_payees", len(persistedPayees)),
		slog.Int("payout_payees", len(payoutPayees)))
	return Selection{
		Entries: BuildFromPayouts(records, dir, logger).Entries(),
		Source:  SourceEphemeral,
		Reason:  reason,
	}
}

type totals struct {
	royalties decimal.Decimal
	expenses  decimal.Decimal
	payments  decimal.Decimal
}

func (t totals) equal(o totals) bool {
	return shared.MoneyEqual(t.royalties, o.royalties) &&
		shared.MoneyEqual(t.expenses, o.expenses) &&
		shared.MoneyEqual(t.payments, o.payments)
}

// totalsDiverge compares lifetime per-payee sums across both sources.
func totalsDiverge(persisted []Entry, records []payouts.Record) bool {
	stored := make(map[uuid.UUID]totals)
	for _, e := range persisted {
		t := stored[e.PayeeID]
		t.royalties = t.royalties.Add(e.RoyaltiesAmount)
		t.expenses = t.expenses.Add(e.ExpensesAmount)
		t.payments = t.payments.Add(e.PaymentsAmount)
		stored[e.PayeeID] = t
	}
	live := make(map[uuid.UUID]totals)
	for _, r := range records {
		if !r.HasPayee() {
			continue
		}
		t := live[*r.PayeeID]
		t.royalties = t.royalties.Add(r.GrossRoyalties)
		t.expenses = t.expenses.Add(r.TotalExpenses)
		if r.IsPaid() {
			t.payments = t.payments.Add(r.AmountDue)
		}
		live[*r.PayeeID] = t
	}
	for id, t := range stored {
		if !t.equal(live[id]) {
			return true
		}
	}
	for id, t := range live {
		if !t.equal(stored[id]) {
			return true
		}
	}
	return false
}
