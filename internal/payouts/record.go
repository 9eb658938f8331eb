package payouts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/shared"
)

// Status values written by this service. Other workflows may store others.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusPaid     = "paid"
)

// StagePendingApproval is the workflow stage for payouts created from batches.
const StagePendingApproval = "pending_approval"

// Record is one disbursement event tied to a payee.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	PayeeID        *uuid.UUID      `json:"payee_id,omitempty"`
	BatchID        *uuid.UUID      `json:"batch_id,omitempty"`
	GrossRoyalties decimal.Decimal `json:"gross_royalties"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	Status         string          `json:"status"`
	WorkflowStage  string          `json:"workflow_stage,omitempty"`
	PeriodStart    *time.Time      `json:"period_start,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsPaid reports whether AmountDue counts as an actual payment. Either the
// status or the workflow stage being "paid" suffices.
func (r Record) IsPaid() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusPaid) ||
		strings.EqualFold(strings.TrimSpace(r.WorkflowStage), StatusPaid)
}

// Quarter derives the ledger period from PeriodStart, falling back to CreatedAt.
func (r Record) Quarter() shared.Quarter {
	if r.PeriodStart != nil && !r.PeriodStart.IsZero() {
		return shared.QuarterOf(*r.PeriodStart)
	}
	return shared.QuarterOf(r.CreatedAt)
}

// HasPayee reports whether the record is attributed to a payee. The zero
// UUID counts as unattributed.
func (r Record) HasPayee() bool {
	return r.PayeeID != nil && *r.PayeeID != uuid.Nil
}

// DistinctPayees counts payees referenced by records, ignoring records without one.
func DistinctPayees(records []Record) map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	for _, r := range records {
		if !r.HasPayee() {
			continue
		}
		out[*r.PayeeID] = struct{}{}
	}
	return out
}
