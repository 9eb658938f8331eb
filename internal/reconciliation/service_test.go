package reconciliation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyops/royaltyops/internal/payouts"
	"github.com/royaltyops/royaltyops/internal/shared"
)

type memoryReconRepo struct {
	batches     map[uuid.UUID]Batch
	allocations []Allocation
	payouts     []payouts.Record
	statements  map[string]uuid.UUID
}

type memoryReconTx struct {
	repo *memoryReconRepo
}

func newMemoryReconRepo() *memoryReconRepo {
	return &memoryReconRepo{
		batches:    make(map[uuid.UUID]Batch),
		statements: make(map[string]uuid.UUID),
	}
}

func (r *memoryReconRepo) ListBatches(ctx context.Context, owner uuid.UUID) ([]Batch, error) {
	var out []Batch
	for _, b := range r.batches {
		if b.OwnerID == owner {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *memoryReconRepo) GetBatch(ctx context.Context, owner, id uuid.UUID) (Batch, error) {
	b, ok := r.batches[id]
	if !ok || b.OwnerID != owner {
		return Batch{}, ErrBatchNotFound
	}
	return b, nil
}

func (r *memoryReconRepo) Allocations(ctx context.Context, owner uuid.UUID, batch Batch) ([]Allocation, []Allocation, error) {
	var linked, statement []Allocation
	for _, a := range r.allocations {
		if a.BatchID != nil && *a.BatchID == batch.ID {
			linked = append(linked, a)
		}
		if batch.LinkedStatementID != nil && (matches(a.StatementID, *batch.LinkedStatementID) || matches(a.StagingRecordID, *batch.LinkedStatementID)) {
			statement = append(statement, a)
		}
	}
	return linked, statement, nil
}

func (r *memoryReconRepo) CreateBatch(ctx context.Context, batch Batch) error {
	r.batches[batch.ID] = batch
	return nil
}

func (r *memoryReconRepo) LinkStatement(ctx context.Context, owner, id uuid.UUID, statementID string) error {
	if other, ok := r.statements[statementID]; ok && other != id {
		return ErrStatementAlreadyLinked
	}
	b, err := r.GetBatch(ctx, owner, id)
	if err != nil {
		return err
	}
	b.LinkedStatementID = &statementID
	r.batches[id] = b
	r.statements[statementID] = id
	return nil
}

func (r *memoryReconRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[uuid.UUID]Batch, len(r.batches))
	for k, v := range r.batches {
		snapshot[k] = v
	}
	paid := len(r.payouts)
	if err := fn(ctx, &memoryReconTx{repo: r}); err != nil {
		r.batches = snapshot
		r.payouts = r.payouts[:paid]
		return err
	}
	return nil
}

func (t *memoryReconTx) LockBatch(ctx context.Context, owner, id uuid.UUID) (Batch, error) {
	return t.repo.GetBatch(ctx, owner, id)
}

func (t *memoryReconTx) Allocations(ctx context.Context, owner uuid.UUID, batch Batch) ([]Allocation, []Allocation, error) {
	return t.repo.Allocations(ctx, owner, batch)
}

func (t *memoryReconTx) InsertPayouts(ctx context.Context, records []payouts.Record) error {
	t.repo.payouts = append(t.repo.payouts, records...)
	return nil
}

func (t *memoryReconTx) MarkProcessed(ctx context.Context, id uuid.UUID, period shared.Quarter, at time.Time) error {
	b := t.repo.batches[id]
	b.Status = BatchProcessed
	b.ProcessedPeriod = &period
	b.UpdatedAt = at
	t.repo.batches[id] = b
	return nil
}

type memoryQueue struct {
	requests []ProcessRequest
}

func (q *memoryQueue) EnqueueProcess(ctx context.Context, req ProcessRequest) (string, error) {
	q.requests = append(q.requests, req)
	return "task-" + req.BatchID.String(), nil
}

type invalidations struct{ count int }

func (i *invalidations) Invalidate(ctx context.Context) error {
	i.count++
	return nil
}

func newTestService(repo *memoryReconRepo) (*Service, *memoryQueue, *invalidations) {
	q := &memoryQueue{}
	inv := &invalidations{}
	svc := NewService(repo, q, inv, nil)
	svc.WithNow(func() time.Time { return fixedNow })
	return svc, q, inv
}

// seedBatch stores an imported batch whose allocations all belong to one payee.
func seedBatch(repo *memoryReconRepo, owner uuid.UUID, gross string, allocated ...string) Batch {
	b := Batch{ID: uuid.New(), OwnerID: owner, BatchRef: "B-1", Source: SourceDSP, TotalGrossAmount: amount(gross), Status: BatchImported}
	repo.batches[b.ID] = b
	payee := uuid.New()
	for _, amt := range allocated {
		repo.allocations = append(repo.allocations, Allocation{ID: uuid.New(), BatchID: &b.ID, PayeeID: &payee, GrossRoyaltyAmount: amount(amt)})
	}
	return b
}

func TestCreateBatchValidates(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, _, _ := newTestService(repo)
	owner := uuid.New()
	ctx := context.Background()

	_, err := svc.CreateBatch(ctx, owner, CreateBatchInput{BatchRef: " ", Source: "Radio", DateReceived: fixedNow})
	require.ErrorIs(t, err, ErrInvalidBatch)
	assert.Contains(t, err.Error(), "batchref failed required")
	assert.Contains(t, err.Error(), "source failed oneof")

	_, err = svc.CreateBatch(ctx, owner, CreateBatchInput{BatchRef: "B-9", Source: SourcePRO, TotalGrossAmount: amount("-1"), DateReceived: fixedNow})
	require.ErrorIs(t, err, ErrInvalidBatch)

	batch, err := svc.CreateBatch(ctx, owner, CreateBatchInput{BatchRef: " B-9 ", Source: SourceYouTube, TotalGrossAmount: amount("12.345"), DateReceived: fixedNow})
	require.NoError(t, err)
	assert.Equal(t, "B-9", batch.BatchRef)
	assert.Equal(t, BatchPending, batch.Status)
	assert.Equal(t, "12.35", batch.TotalGrossAmount.StringFixed(2))
	assert.Contains(t, repo.batches, batch.ID)
}

func TestLinkStatementRejectsDuplicate(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, _, _ := newTestService(repo)
	owner := uuid.New()
	first := seedBatch(repo, owner, "100")
	second := seedBatch(repo, owner, "100")
	repo.allocations = append(repo.allocations, Allocation{ID: uuid.New(), StatementID: strPtr("stmt-1"), GrossRoyaltyAmount: amount("100")})

	view, err := svc.LinkStatement(context.Background(), owner, first.ID, "stmt-1")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, view.Progress.Status)

	_, err = svc.LinkStatement(context.Background(), owner, second.ID, "stmt-1")
	require.ErrorIs(t, err, ErrStatementAlreadyLinked)
}

func TestGetBatchUnknownOwner(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, _, _ := newTestService(repo)
	b := seedBatch(repo, uuid.New(), "100")
	_, err := svc.GetBatch(context.Background(), uuid.New(), b.ID)
	require.ErrorIs(t, err, ErrBatchNotFound)
}

func TestProcessBatchQueuesWhenValid(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, queue, _ := newTestService(repo)
	owner := uuid.New()
	b := seedBatch(repo, owner, "1000", "600", "395")

	accepted, err := svc.ProcessBatch(context.Background(), owner, b.ID, 3, 2025)
	require.NoError(t, err)
	assert.Equal(t, "task-"+b.ID.String(), accepted.TaskID)
	assert.Equal(t, "99.5", accepted.Batch.Progress.Percent)
	require.Len(t, queue.requests, 1)
	assert.Equal(t, ProcessRequest{OwnerID: owner, BatchID: b.ID, Year: 2025, Quarter: 3}, queue.requests[0])
	assert.Empty(t, repo.payouts, "nothing written before the worker runs")
}

func TestProcessBatchRejectsSynchronously(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, queue, _ := newTestService(repo)
	owner := uuid.New()
	incomplete := seedBatch(repo, owner, "1000", "990")
	complete := seedBatch(repo, owner, "1000", "1000")

	_, err := svc.ProcessBatch(context.Background(), owner, incomplete.ID, 2, 2025)
	require.ErrorIs(t, err, ErrNotReady)

	_, err = svc.ProcessBatch(context.Background(), owner, complete.ID, 1, 2025)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	assert.Empty(t, queue.requests)
	assert.Equal(t, BatchImported, repo.batches[complete.ID].Status)
}

func TestExecuteProcessCreatesPayouts(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, _, inv := newTestService(repo)
	owner := uuid.New()
	b := seedBatch(repo, owner, "1000", "600", "400")
	repo.allocations = append(repo.allocations, Allocation{ID: uuid.New(), BatchID: &b.ID, GrossRoyaltyAmount: amount("0")})

	outcome, err := svc.ExecuteProcess(context.Background(), ProcessRequest{OwnerID: owner, BatchID: b.ID, Year: 2025, Quarter: 3})
	require.NoError(t, err)
	require.Len(t, outcome.Payouts, 1)
	assert.Equal(t, "1000.00", outcome.Payouts[0].GrossRoyalties.StringFixed(2))
	assert.Equal(t, payouts.StatusPending, outcome.Payouts[0].Status)
	assert.Equal(t, shared.Quarter{Year: 2025, Q: 3}, outcome.Payouts[0].Quarter())

	stored := repo.batches[b.ID]
	assert.Equal(t, BatchProcessed, stored.Status)
	require.NotNil(t, stored.ProcessedPeriod)
	assert.Equal(t, "Q3 2025", stored.ProcessedPeriod.Label())
	assert.Len(t, repo.payouts, 1)
	assert.Equal(t, 1, inv.count)

	_, err = svc.ExecuteProcess(context.Background(), ProcessRequest{OwnerID: owner, BatchID: b.ID, Year: 2025, Quarter: 3})
	require.ErrorIs(t, err, ErrNotReady)
	assert.Len(t, repo.payouts, 1)
}

func TestExecuteProcessReportsUnassignedAllocations(t *testing.T) {
	repo := newMemoryReconRepo()
	var logs bytes.Buffer
	svc := NewService(repo, &memoryQueue{}, &invalidations{}, slog.New(slog.NewTextHandler(&logs, nil)))
	svc.WithNow(func() time.Time { return fixedNow })
	owner := uuid.New()
	b := seedBatch(repo, owner, "1000", "600")
	zero := uuid.Nil
	repo.allocations = append(repo.allocations,
		Allocation{ID: uuid.New(), BatchID: &b.ID, GrossRoyaltyAmount: amount("250")},
		Allocation{ID: uuid.New(), BatchID: &b.ID, PayeeID: &zero, GrossRoyaltyAmount: amount("150")},
	)

	outcome, err := svc.ExecuteProcess(context.Background(), ProcessRequest{OwnerID: owner, BatchID: b.ID, Year: 2025, Quarter: 3})
	require.NoError(t, err)
	require.Len(t, outcome.Payouts, 1)
	assert.Equal(t, "600.00", outcome.Payouts[0].GrossRoyalties.StringFixed(2))
	assert.Equal(t, "400.00", outcome.Unassigned.StringFixed(2))
	assert.Equal(t, 2, outcome.UnassignedCount)
	assert.Equal(t, BatchProcessed, repo.batches[b.ID].Status)
	assert.Contains(t, logs.String(), "unassigned=400.00")
}

func TestExecuteProcessRevalidatesPeriod(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, _, inv := newTestService(repo)
	owner := uuid.New()
	b := seedBatch(repo, owner, "100", "100")

	_, err := svc.ExecuteProcess(context.Background(), ProcessRequest{OwnerID: owner, BatchID: b.ID, Year: 2024, Quarter: 4})
	var perr *ProcessError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindInvalidPeriod, perr.Kind)
	assert.Equal(t, BatchImported, repo.batches[b.ID].Status)
	assert.Empty(t, repo.payouts)
	assert.Zero(t, inv.count)
}

func TestExecuteProcessWithoutPayeesIsNotReady(t *testing.T) {
	repo := newMemoryReconRepo()
	svc, _, _ := newTestService(repo)
	owner := uuid.New()
	b := seedBatch(repo, owner, "100")
	repo.allocations = append(repo.allocations, Allocation{ID: uuid.New(), BatchID: &b.ID, GrossRoyaltyAmount: amount("100")})

	_, err := svc.ExecuteProcess(context.Background(), ProcessRequest{OwnerID: owner, BatchID: b.ID, Year: 2025, Quarter: 2})
	require.ErrorIs(t, err, ErrNotReady)
	require.ErrorIs(t, err, payouts.ErrNoShares)
	assert.Equal(t, BatchImported, repo.batches[b.ID].Status)
}
