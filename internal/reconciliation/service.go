package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/royaltyops/royaltyops/internal/payouts"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Repository defines reconciliation data access.
type Repository interface {
	ListBatches(ctx context.Context, owner uuid.UUID) ([]Batch, error)
	GetBatch(ctx context.Context, owner, id uuid.UUID) (Batch, error)
	// Allocations returns allocations linked by batch id and, when the batch has a
	// linked statement, those referencing it by statement or staging record id.
	Allocations(ctx context.Context, owner uuid.UUID, batch Batch) (linked, statement []Allocation, err error)
	CreateBatch(ctx context.Context, batch Batch) error
	LinkStatement(ctx context.Context, owner, id uuid.UUID, statementID string) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository defines operations within the processing transaction.
type TxRepository interface {
	// LockBatch reads the batch with a row lock held until commit.
	LockBatch(ctx context.Context, owner, id uuid.UUID) (Batch, error)
	Allocations(ctx context.Context, owner uuid.UUID, batch Batch) (linked, statement []Allocation, err error)
	InsertPayouts(ctx context.Context, records []payouts.Record) error
	MarkProcessed(ctx context.Context, id uuid.UUID, period shared.Quarter, at time.Time) error
}

// ProcessRequest asks for a batch to be turned into payouts for a quarter.
type ProcessRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
	BatchID uuid.UUID `json:"batch_id"`
	Year    int       `json:"year"`
	Quarter int       `json:"quarter"`
}

// Period returns the requested target quarter.
func (r ProcessRequest) Period() shared.Quarter {
	return shared.Quarter{Year: r.Year, Q: r.Quarter}
}

// Queue hands accepted process requests to the worker.
type Queue interface {
	EnqueueProcess(ctx context.Context, req ProcessRequest) (string, error)
}

// LedgerInvalidator drops cached ledgers after payouts change.
type LedgerInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ProcessAccepted is returned when a request passed validation and was queued.
type ProcessAccepted struct {
	Batch    BatchView      `json:"batch"`
	TaskID   string         `json:"task_id"`
	Target   shared.Quarter `json:"target"`
	Accepted time.Time      `json:"accepted_at"`
}

// ProcessOutcome summarises a completed processing run.
type ProcessOutcome struct {
	BatchID uuid.UUID        `json:"batch_id"`
	Period  shared.Quarter   `json:"period"`
	Payouts []payouts.Record `json:"payouts"`

	// Unassigned is the allocated amount with no payee; no payout carries it.
	Unassigned      decimal.Decimal `json:"unassigned"`
	UnassignedCount int             `json:"unassigned_count"`
}

// Service coordinates batch reconciliation.
type Service struct {
	repo      Repository
	queue     Queue
	ledger    LedgerInvalidator
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the service. queue and ledger may be nil.
func NewService(repo Repository, queue Queue, ledger LedgerInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		queue:     queue,
		ledger:    ledger,
		validator: validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListBatches returns the owner's batches with progress.
func (s *Service) ListBatches(ctx context.Context, owner uuid.UUID) ([]BatchView, error) {
	batches, err := s.repo.ListBatches(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]BatchView, 0, len(batches))
	for _, b := range batches {
		view, err := s.view(ctx, owner, b)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// GetBatch returns one batch with progress.
func (s *Service) GetBatch(ctx context.Context, owner, id uuid.UUID) (BatchView, error) {
	batch, err := s.repo.GetBatch(ctx, owner, id)
	if err != nil {
		return BatchView{}, err
	}
	return s.view(ctx, owner, batch)
}

func (s *Service) view(ctx context.Context, owner uuid.UUID, batch Batch) (BatchView, error) {
	linked, statement, err := s.repo.Allocations(ctx, owner, batch)
	if err != nil {
		return BatchView{}, fmt.Errorf("reconciliation: allocations for %s: %w", batch.ID, err)
	}
	return BatchView{Batch: batch, Progress: Classify(batch, ComputeAllocatedAmount(batch, linked, statement))}, nil
}

// CreateBatch records a newly received statement as a pending batch.
func (s *Service) CreateBatch(ctx context.Context, owner uuid.UUID, input CreateBatchInput) (Batch, error) {
	input.BatchRef = strings.TrimSpace(input.BatchRef)
	if err := s.validator.Struct(input); err != nil {
		return Batch{}, fmt.Errorf("%w: %s", ErrInvalidBatch, describeValidation(err))
	}
	if input.TotalGrossAmount.IsNegative() {
		return Batch{}, fmt.Errorf("%w: total_gross_amount must not be negative", ErrInvalidBatch)
	}
	if input.StatementPeriodStart != nil && input.StatementPeriodEnd != nil && input.StatementPeriodEnd.Before(*input.StatementPeriodStart) {
		return Batch{}, fmt.Errorf("%w: statement period ends before it starts", ErrInvalidBatch)
	}
	now := s.now()
	batch := Batch{
		ID:                   uuid.New(),
		OwnerID:              owner,
		BatchRef:             input.BatchRef,
		Source:               input.Source,
		TotalGrossAmount:     shared.Round2(input.TotalGrossAmount),
		DateReceived:         input.DateReceived.UTC(),
		Status:               BatchPending,
		StatementPeriodStart: input.StatementPeriodStart,
		StatementPeriodEnd:   input.StatementPeriodEnd,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

// LinkStatement attaches a statement to the batch. A statement may back at most one batch.
func (s *Service) LinkStatement(ctx context.Context, owner, id uuid.UUID, statementID string) (BatchView, error) {
	statementID = strings.TrimSpace(statementID)
	if statementID == "" {
		return BatchView{}, fmt.Errorf("%w: statement_id is required", ErrInvalidBatch)
	}
	batch, err := s.repo.GetBatch(ctx, owner, id)
	if err != nil {
		return BatchView{}, err
	}
	if batch.Status == BatchProcessed {
		return BatchView{}, fmt.Errorf("%w: processed batches cannot be relinked", ErrInvalidBatch)
	}
	if err := s.repo.LinkStatement(ctx, owner, id, statementID); err != nil {
		return BatchView{}, err
	}
	batch.LinkedStatementID = &statementID
	return s.view(ctx, owner, batch)
}

// ProcessBatch validates the request synchronously and queues the payout creation.
// Nothing is written when validation fails.
func (s *Service) ProcessBatch(ctx context.Context, owner, id uuid.UUID, quarter, year int) (ProcessAccepted, error) {
	view, err := s.GetBatch(ctx, owner, id)
	if err != nil {
		return ProcessAccepted{}, err
	}
	target := shared.Quarter{Year: year, Q: quarter}
	if err := ValidateProcess(view.Batch, view.Progress, target, s.now()); err != nil {
		return ProcessAccepted{}, err
	}
	if s.queue == nil {
		return ProcessAccepted{}, errors.New("reconciliation: job queue not configured")
	}
	taskID, err := s.queue.EnqueueProcess(ctx, ProcessRequest{OwnerID: owner, BatchID: id, Year: year, Quarter: quarter})
	if err != nil {
		return ProcessAccepted{}, fmt.Errorf("reconciliation: enqueue process: %w", err)
	}
	s.logger.Info("batch process queued",
		slog.String("batch_id", id.String()),
		slog.String("target", target.Label()),
		slog.String("task_id", taskID))
	return ProcessAccepted{Batch: view, TaskID: taskID, Target: target, Accepted: s.now()}, nil
}

// ExecuteProcess runs a queued request: it re-validates under a row lock,
// creates one pending payout per payee and marks the batch processed.
func (s *Service) ExecuteProcess(ctx context.Context, req ProcessRequest) (ProcessOutcome, error) {
	target := req.Period()
	outcome := ProcessOutcome{BatchID: req.BatchID, Period: target}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.LockBatch(ctx, req.OwnerID, req.BatchID)
		if err != nil {
			return err
		}
		linked, statement, err := tx.Allocations(ctx, req.OwnerID, batch)
		if err != nil {
			return fmt.Errorf("reconciliation: allocations for %s: %w", batch.ID, err)
		}
		contributing := Contributing(batch, linked, statement)
		progress := Classify(batch, ComputeAllocatedAmount(batch, linked, statement))
		now := s.now()
		if err := ValidateProcess(batch, progress, target, now); err != nil {
			return err
		}

		shares := make([]payouts.Share, 0, len(contributing))
		unassigned, skipped := decimal.Zero, 0
		for _, a := range contributing {
			if a.PayeeID == nil || *a.PayeeID == uuid.Nil {
				unassigned = unassigned.Add(a.GrossRoyaltyAmount)
				skipped++
				continue
			}
			shares = append(shares, payouts.Share{PayeeID: *a.PayeeID, Amount: a.GrossRoyaltyAmount})
		}
		records, err := payouts.NewFromShares(req.OwnerID, batch.ID, target, shares, now)
		if err != nil {
			return &ProcessError{Kind: KindNotReady, BatchID: batch.ID, Err: fmt.Errorf("%w: %w", ErrNotReady, err)}
		}
		if err := tx.InsertPayouts(ctx, records); err != nil {
			return err
		}
		if err := tx.MarkProcessed(ctx, batch.ID, target, now); err != nil {
			return err
		}
		outcome.Payouts = records
		outcome.Unassigned = shared.Round2(unassigned)
		outcome.UnassignedCount = skipped
		return nil
	})
	if err != nil {
		return ProcessOutcome{}, err
	}

	if s.ledger != nil {
		if err := s.ledger.Invalidate(ctx); err != nil {
			s.logger.Warn("ledger invalidate after batch process", slog.Any("error", err))
		}
	}
	if outcome.UnassignedCount > 0 {
		s.logger.Warn("batch processed with unassigned allocations",
			slog.String("batch_id", req.BatchID.String()),
			slog.Int("allocations", outcome.UnassignedCount),
			slog.String("unassigned", shared.FormatMoney(outcome.Unassigned)))
	}
	s.logger.Info("batch processed",
		slog.String("batch_id", req.BatchID.String()),
		slog.String("period", target.Label()),
		slog.Int("payouts", len(outcome.Payouts)))
	return outcome, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
