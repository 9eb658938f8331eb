package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/shared"
)

// Source is where a royalty statement came from.
type Source string

const (
	SourceDSP     Source = "DSP"
	SourcePRO     Source = "PRO"
	SourceYouTube Source = "YouTube"
	SourceOther   Source = "Other"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceDSP, SourcePRO, SourceYouTube, SourceOther:
		return true
	}
	return false
}

// BatchStatus is the stored lifecycle state of a batch.
type BatchStatus string

const (
	BatchPending   BatchStatus = "Pending"
	BatchImported  BatchStatus = "Imported"
	BatchProcessed BatchStatus = "Processed"
)

// Batch is an externally received royalty statement awaiting allocation.
type Batch struct {
	ID                   uuid.UUID       `json:"id"`
	OwnerID              uuid.UUID       `json:"owner_id"`
	BatchRef             string          `json:"batch_id"`
	Source               Source          `json:"source"`
	TotalGrossAmount     decimal.Decimal `json:"total_gross_amount"`
	DateReceived         time.Time       `json:"date_received"`
	LinkedStatementID    *string         `json:"linked_statement_id,omitempty"`
	Status               BatchStatus     `json:"status"`
	StatementPeriodStart *time.Time      `json:"statement_period_start,omitempty"`
	StatementPeriodEnd   *time.Time      `json:"statement_period_end,omitempty"`
	ProcessedPeriod      *shared.Quarter `json:"processed_period,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Allocation attributes part of a gross amount to a batch and/or statement.
type Allocation struct {
	ID                 uuid.UUID       `json:"id"`
	BatchID            *uuid.UUID      `json:"batch_id,omitempty"`
	StatementID        *string         `json:"statement_id,omitempty"`
	StagingRecordID    *string         `json:"staging_record_id,omitempty"`
	PayeeID            *uuid.UUID      `json:"payee_id,omitempty"`
	GrossRoyaltyAmount decimal.Decimal `json:"gross_royalty_amount"`
}

// CreateBatchInput captures a newly received statement.
type CreateBatchInput struct {
	BatchRef             string          `json:"batch_id" validate:"required,max=64"`
	Source               Source          `json:"source" validate:"required,oneof=DSP PRO YouTube Other"`
	TotalGrossAmount     decimal.Decimal `json:"total_gross_amount"`
	DateReceived         time.Time       `json:"date_received" validate:"required"`
	StatementPeriodStart *time.Time      `json:"statement_period_start,omitempty"`
	StatementPeriodEnd   *time.Time      `json:"statement_period_end,omitempty"`
}

// BatchView pairs a batch with its computed progress.
type BatchView struct {
	Batch    Batch    `json:"batch"`
	Progress Progress `json:"progress"`
}
