package reconciliation

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// completionTolerance is the exclusive bound on |ratio - 1| for a complete batch.
var completionTolerance = decimal.New(1, -2)

// Status is the derived reconciliation state.
type Status string

const (
	StatusComplete   Status = "Complete"
	StatusIncomplete Status = "Incomplete"
)

// Progress describes how much of a batch has been allocated.
type Progress struct {
	Allocated  decimal.Decimal `json:"allocated_amount"`
	Total      decimal.Decimal `json:"total_gross_amount"`
	Ratio      decimal.Decimal `json:"ratio"`
	Percent    string          `json:"percent"`
	Status     Status          `json:"status"`
	CanProcess bool            `json:"can_process"`
}

// ComputeAllocatedAmount sums allocations linked to the batch directly plus
// those reachable through its linked statement. An allocation found through
// both links counts once.
func ComputeAllocatedAmount(batch Batch, allocations, statementAllocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range Contributing(batch, allocations, statementAllocations) {
		total = total.Add(a.GrossRoyaltyAmount)
	}
	return total
}

// Contributing returns the de-duplicated allocations that count towards batch.
func Contributing(batch Batch, allocations, statementAllocations []Allocation) []Allocation {
	seen := make(map[uuid.UUID]struct{})
	var out []Allocation
	add := func(a Allocation) {
		if a.ID != uuid.Nil {
			if _, dup := seen[a.ID]; dup {
				return
			}
			seen[a.ID] = struct{}{}
		}
		out = append(out, a)
	}

	for _, a := range allocations {
		if a.BatchID != nil && *a.BatchID == batch.ID {
			add(a)
		}
	}
	if linked := linkedStatement(batch); linked != "" {
		for _, a := range statementAllocations {
			if matches(a.StatementID, linked) || matches(a.StagingRecordID, linked) {
				add(a)
			}
		}
	}
	return out
}

// Classify derives progress and processability. A batch with no gross amount
// has ratio zero and is never complete.
func Classify(batch Batch, allocated decimal.Decimal) Progress {
	ratio := decimal.Zero
	if batch.TotalGrossAmount.IsPositive() {
		ratio = allocated.Div(batch.TotalGrossAmount)
	}
	status := StatusIncomplete
	if ratio.Sub(decimal.NewFromInt(1)).Abs().LessThan(completionTolerance) {
		status = StatusComplete
	}
	return Progress{
		Allocated:  allocated,
		Total:      batch.TotalGrossAmount,
		Ratio:      ratio,
		Percent:    ratio.Mul(decimal.NewFromInt(100)).StringFixed(1),
		Status:     status,
		CanProcess: status == StatusComplete && batch.Status != BatchProcessed,
	}
}

func linkedStatement(b Batch) string {
	if b.LinkedStatementID == nil {
		return ""
	}
	return *b.LinkedStatementID
}

func matches(ref *string, want string) bool {
	return ref != nil && *ref == want
}
