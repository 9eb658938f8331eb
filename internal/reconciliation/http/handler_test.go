package reconhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royaltyops/royaltyops/internal/platform/httpx"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
	"github.com/royaltyops/royaltyops/internal/shared"
)

type stubService struct {
	views      []reconciliation.BatchView
	view       reconciliation.BatchView
	batch      reconciliation.Batch
	accepted   reconciliation.ProcessAccepted
	err        error
	gotInput   reconciliation.CreateBatchInput
	gotStmt    string
	gotQuarter int
	gotYear    int
}

func (s *stubService) ListBatches(ctx context.Context, owner uuid.UUID) ([]reconciliation.BatchView, error) {
	return s.views, s.err
}

func (s *stubService) GetBatch(ctx context.Context, owner, id uuid.UUID) (reconciliation.BatchView, error) {
	return s.view, s.err
}

func (s *stubService) CreateBatch(ctx context.Context, owner uuid.UUID, input reconciliation.CreateBatchInput) (reconciliation.Batch, error) {
	s.gotInput = input
	return s.batch, s.err
}

func (s *stubService) LinkStatement(ctx context.Context, owner, id uuid.UUID, statementID string) (reconciliation.BatchView, error) {
	s.gotStmt = statementID
	return s.view, s.err
}

func (s *stubService) ProcessBatch(ctx context.Context, owner, id uuid.UUID, quarter, year int) (reconciliation.ProcessAccepted, error) {
	s.gotQuarter, s.gotYear = quarter, year
	return s.accepted, s.err
}

func serve(t *testing.T, svc Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(httpx.RequireOwner)
		NewHandler(nil, svc).MountRoutes(r)
	})
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set(shared.OwnerHeader, uuid.NewString())
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestListEmptyIsArray(t *testing.T) {
	rr := serve(t, &stubService{}, http.MethodGet, "/api/batches/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestCreateDecodesInput(t *testing.T) {
	svc := &stubService{batch: reconciliation.Batch{ID: uuid.New(), BatchRef: "B-7"}}
	body := `{"batch_id":"B-7","source":"PRO","total_gross_amount":"250.10","date_received":"2025-04-02T00:00:00Z"}`
	rr := serve(t, svc, http.MethodPost, "/api/batches/", body)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, reconciliation.SourcePRO, svc.gotInput.Source)
	assert.True(t, svc.gotInput.TotalGrossAmount.Equal(decimal.RequireFromString("250.10")))

	rr = serve(t, svc, http.MethodPost, "/api/batches/", `{"batch_id":"B-7","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShowMapsNotFound(t *testing.T) {
	rr := serve(t, &stubService{err: reconciliation.ErrBatchNotFound}, http.MethodGet, "/api/batches/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, &stubService{}, http.MethodGet, "/api/batches/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLinkConflict(t *testing.T) {
	svc := &stubService{err: reconciliation.ErrStatementAlreadyLinked}
	rr := serve(t, svc, http.MethodPost, "/api/batches/"+uuid.NewString()+"/statement", `{"statement_id":"stmt-9"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "stmt-9", svc.gotStmt)
}

func TestProcessAccepted(t *testing.T) {
	svc := &stubService{accepted: reconciliation.ProcessAccepted{TaskID: "task-1", Target: shared.Quarter{Year: 2025, Q: 3}}}
	rr := serve(t, svc, http.MethodPost, "/api/batches/"+uuid.NewString()+"/process", `{"quarter":3,"year":2025}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 3, svc.gotQuarter)
	assert.Equal(t, 2025, svc.gotYear)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "task-1", body["task_id"])
}

func TestProcessRejectionIsUnprocessable(t *testing.T) {
	perr := &reconciliation.ProcessError{Kind: reconciliation.KindNotReady, BatchID: uuid.New(), Err: reconciliation.ErrNotReady}
	rr := serve(t, &stubService{err: perr}, http.MethodPost, "/api/batches/"+uuid.NewString()+"/process", `{"quarter":3,"year":2025}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "NotReady", problem.Kind)
	assert.Equal(t, http.StatusUnprocessableEntity, problem.Status)
}
