package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/royaltyops/royaltyops/internal/jobs"
	"github.com/royaltyops/royaltyops/internal/ledger"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
	"github.com/royaltyops/royaltyops/internal/shared"
)

type stubLedger struct {
	owners      []uuid.UUID
	regenerated []uuid.UUID
	all         int
	verify      map[uuid.UUID]ledger.VerifyResult
	err         error
}

func (s *stubLedger) Regenerate(ctx context.Context, owner uuid.UUID) (ledger.RegenerateResult, error) {
	s.regenerated = append(s.regenerated, owner)
	return ledger.RegenerateResult{OwnerID: owner}, s.err
}

func (s *stubLedger) RegenerateAll(ctx context.Context) ([]ledger.RegenerateResult, error) {
	s.all++
	out := make([]ledger.RegenerateResult, 0, len(s.owners))
	for _, o := range s.owners {
		out = append(out, ledger.RegenerateResult{OwnerID: o})
	}
	return out, s.err
}

func (s *stubLedger) Owners(ctx context.Context) ([]uuid.UUID, error) {
	return s.owners, s.err
}

func (s *stubLedger) Verify(ctx context.Context, owner uuid.UUID) (ledger.VerifyResult, error) {
	return s.verify[owner], s.err
}

type stubProcessor struct {
	got reconciliation.ProcessRequest
	err error
}

func (s *stubProcessor) ExecuteProcess(ctx context.Context, req reconciliation.ProcessRequest) (reconciliation.ProcessOutcome, error) {
	s.got = req
	return reconciliation.ProcessOutcome{BatchID: req.BatchID, Period: req.Period()}, s.err
}

func testMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func TestLedgerRegenerateScopes(t *testing.T) {
	svc := &stubLedger{owners: []uuid.UUID{uuid.New(), uuid.New()}}
	metrics, _ := testMetrics(t)
	job := NewLedgerRegenerateJob(svc, nil, metrics)

	task, err := NewLedgerRegenerateTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, svc.all)

	owner := uuid.New()
	task, err = NewLedgerRegenerateTask(owner.String())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, []uuid.UUID{owner}, svc.regenerated)
}

func TestLedgerRegenerateRejectsBadPayload(t *testing.T) {
	job := NewLedgerRegenerateJob(&stubLedger{}, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerRegenerate, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, _ := NewLedgerRegenerateTask("not-a-uuid")
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLedgerRegenerateCountsFailures(t *testing.T) {
	svc := &stubLedger{err: errors.New("db down")}
	metrics, reg := testMetrics(t)
	job := NewLedgerRegenerateJob(svc, nil, metrics)

	task, _ := NewLedgerRegenerateTask(ScopeAll)
	err := job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	count, err := testutil.GatherAndCount(reg, "royaltyops_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLedgerIntegrityLogsFindings(t *testing.T) {
	clean, dirty := uuid.New(), uuid.New()
	svc := &stubLedger{
		owners: []uuid.UUID{clean, dirty},
		verify: map[uuid.UUID]ledger.VerifyResult{
			dirty: {OwnerID: dirty, Violations: []ledger.Violation{{Kind: ledger.ViolationContinuity, PayeeID: uuid.New()}}},
		},
	}
	job := NewLedgerIntegrityJob(svc, nil, nil)
	require.NoError(t, job.Handle(context.Background(), NewLedgerVerifyTask()))

	svc.err = errors.New("timeout")
	require.Error(t, job.Handle(context.Background(), NewLedgerVerifyTask()))
}

func TestReconciliationProcessDecodesRequest(t *testing.T) {
	req := reconciliation.ProcessRequest{OwnerID: uuid.New(), BatchID: uuid.New(), Year: 2025, Quarter: 3}
	task, err := NewReconciliationProcessTask(req)
	require.NoError(t, err)
	assert.Equal(t, TaskReconciliationProcess, task.Type())

	svc := &stubProcessor{}
	require.NoError(t, NewReconciliationProcessJob(svc, nil, nil).Handle(context.Background(), task))
	assert.Equal(t, req, svc.got)
	assert.Equal(t, shared.Quarter{Year: 2025, Q: 3}, svc.got.Period())
}

func TestReconciliationProcessSkipsRetryOnRejection(t *testing.T) {
	task, _ := NewReconciliationProcessTask(reconciliation.ProcessRequest{BatchID: uuid.New(), Year: 2025, Quarter: 1})

	rejected := &stubProcessor{err: &reconciliation.ProcessError{Kind: reconciliation.KindInvalidPeriod, Err: reconciliation.ErrInvalidPeriod}}
	err := NewReconciliationProcessJob(rejected, nil, nil).Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, reconciliation.ErrInvalidPeriod)

	missing := &stubProcessor{err: reconciliation.ErrBatchNotFound}
	assert.ErrorIs(t, NewReconciliationProcessJob(missing, nil, nil).Handle(context.Background(), task), asynq.SkipRetry)

	transient := &stubProcessor{err: errors.New("conn reset")}
	err = NewReconciliationProcessJob(transient, nil, nil).Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueDefault, body["queue"])
}
