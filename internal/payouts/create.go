package payouts

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/shared"
)

// ErrNoShares is returned when a batch has nothing attributable to a payee.
var ErrNoShares = errors.New("payouts: no payee shares to create")

// Share is one allocation amount attributed to a payee.
type Share struct {
	PayeeID uuid.UUID
	Amount  decimal.Decimal
}

// NewFromShares sums shares per payee and returns one pending payout each,
// dated to the start of period. Output is ordered by payee id.
func NewFromShares(owner, batchID uuid.UUID, period shared.Quarter, shares []Share, now time.Time) ([]Record, error) {
	totals := make(map[uuid.UUID]decimal.Decimal)
	for _, s := range shares {
		if s.PayeeID == uuid.Nil {
			continue
		}
		totals[s.PayeeID] = totals[s.PayeeID].Add(s.Amount)
	}
	if len(totals) == 0 {
		return nil, ErrNoShares
	}

	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	start := period.Start()
	batch := batchID
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		payee := id
		gross := shared.Round2(totals[id])
		records = append(records, Record{
			ID:             uuid.New(),
			OwnerID:        owner,
			PayeeID:        &payee,
			BatchID:        &batch,
			GrossRoyalties: gross,
			TotalExpenses:  decimal.Zero,
			AmountDue:      gross,
			Status:         StatusPending,
			WorkflowStage:  StagePendingApproval,
			PeriodStart:    &start,
			CreatedAt:      now.UTC(),
		})
	}
	return records, nil
}
