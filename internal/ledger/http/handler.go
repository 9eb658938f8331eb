package ledgerhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/royaltyops/royaltyops/internal/ledger"
	"github.com/royaltyops/royaltyops/internal/ledger/export"
	"github.com/royaltyops/royaltyops/internal/platform/httpx"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Service is the ledger behaviour the handler needs.
type Service interface {
	Ledger(ctx context.Context, owner uuid.UUID, filter ledger.Filter) (ledger.Report, error)
	Verify(ctx context.Context, owner uuid.UUID) (ledger.VerifyResult, error)
}

// Enqueuer schedules background regeneration.
type Enqueuer interface {
	EnqueueLedgerRegenerate(ctx context.Context, owner string) (string, error)
}

// Handler serves /api/ledger.
type Handler struct {
	logger  *slog.Logger
	service Service
	jobs    Enqueuer
}

// NewHandler constructs handler. jobs may be nil, which disables regeneration.
func NewHandler(logger *slog.Logger, service Service, jobs Enqueuer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, jobs: jobs}
}

// MountRoutes registers routes. Callers install httpx.RequireOwner upstream.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", h.show)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/export.xlsx", h.exportXLSX)
		r.Get("/verify", h.verify)
		r.Post("/regenerate", h.regenerate)
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteLedgerCSV(&buf, report.Entries); err != nil {
		h.logger.Error("ledger csv export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(report, "csv"))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	report, ok := h.load(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteLedgerXLSX(&buf, report.Entries); err != nil {
		h.logger.Error("ledger xlsx export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", attachment(report, "xlsx"))
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	owner, _ := shared.OwnerFromContext(r.Context())
	result, err := h.service.Verify(r.Context(), owner)
	if err != nil {
		h.fail(w, "ledger verify", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"owner_id":   result.OwnerID,
		"clean":      result.Clean(),
		"violations": nonNil(result.Violations),
		"drift":      nonNil(result.Drift),
	})
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		httpx.RespondError(w, fmt.Errorf("%w: job queue not configured", httpx.ErrUnavailable))
		return
	}
	owner, _ := shared.OwnerFromContext(r.Context())
	taskID, err := h.jobs.EnqueueLedgerRegenerate(r.Context(), owner.String())
	if err != nil {
		h.logger.Error("enqueue ledger regenerate", slog.String("owner_id", owner.String()), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "owner_id": owner.String()})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (ledger.Report, bool) {
	owner, _ := shared.OwnerFromContext(r.Context())
	var filter ledger.Filter
	if raw := strings.TrimSpace(r.URL.Query().Get("payee_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: payee_id must be a uuid", httpx.ErrValidation))
			return ledger.Report{}, false
		}
		filter.PayeeID = &id
	}
	report, err := h.service.Ledger(r.Context(), owner, filter)
	if err != nil {
		h.fail(w, "ledger load", err)
		return ledger.Report{}, false
	}
	if report.Entries == nil {
		report.Entries = []ledger.Entry{}
	}
	return report, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, shared.ErrOwnerRequired):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
	case ledger.IsSnapshotError(err):
		h.logger.Error(msg, slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: ledger data is temporarily unavailable", httpx.ErrUnavailable))
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func attachment(report ledger.Report, ext string) string {
	stamp := report.GeneratedAt
	if stamp.IsZero() {
		stamp = time.Now().UTC()
	}
	return fmt.Sprintf(`attachment; filename="balances-%s.%s"`, stamp.Format("20060102"), ext)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
