package reconhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/royaltyops/royaltyops/internal/platform/httpx"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
	"github.com/royaltyops/royaltyops/internal/shared"
)

// Service is the reconciliation behaviour the handler needs.
type Service interface {
	ListBatches(ctx context.Context, owner uuid.UUID) ([]reconciliation.BatchView, error)
	GetBatch(ctx context.Context, owner, id uuid.UUID) (reconciliation.BatchView, error)
	CreateBatch(ctx context.Context, owner uuid.UUID, input reconciliation.CreateBatchInput) (reconciliation.Batch, error)
	LinkStatement(ctx context.Context, owner, id uuid.UUID, statementID string) (reconciliation.BatchView, error)
	ProcessBatch(ctx context.Context, owner, id uuid.UUID, quarter, year int) (reconciliation.ProcessAccepted, error)
}

// Handler serves /api/batches.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes. Callers install httpx.RequireOwner upstream.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/batches", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.show)
		r.Post("/{id}/statement", h.link)
		r.Post("/{id}/process", h.process)
	})
}

type linkRequest struct {
	StatementID string `json:"statement_id"`
}

type processRequest struct {
	Quarter int `json:"quarter"`
	Year    int `json:"year"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	owner, _ := shared.OwnerFromContext(r.Context())
	views, err := h.service.ListBatches(r.Context(), owner)
	if err != nil {
		h.fail(w, "list batches", err)
		return
	}
	if views == nil {
		views = []reconciliation.BatchView{}
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input reconciliation.CreateBatchInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	owner, _ := shared.OwnerFromContext(r.Context())
	batch, err := h.service.CreateBatch(r.Context(), owner, input)
	if err != nil {
		h.fail(w, "create batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	owner, _ := shared.OwnerFromContext(r.Context())
	view, err := h.service.GetBatch(r.Context(), owner, id)
	if err != nil {
		h.fail(w, "get batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) link(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	owner, _ := shared.OwnerFromContext(r.Context())
	view, err := h.service.LinkStatement(r.Context(), owner, id, req.StatementID)
	if err != nil {
		h.fail(w, "link statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	var req processRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	owner, _ := shared.OwnerFromContext(r.Context())
	accepted, err := h.service.ProcessBatch(r.Context(), owner, id, req.Quarter, req.Year)
	if err != nil {
		h.fail(w, "process batch", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, accepted)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	var perr *reconciliation.ProcessError
	switch {
	case errors.As(err, &perr):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Batch Cannot Be Processed",
			Status: http.StatusUnprocessableEntity,
			Detail: perr.Error(),
			Kind:   string(perr.Kind),
		})
	case errors.Is(err, reconciliation.ErrBatchNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, reconciliation.ErrStatementAlreadyLinked):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, reconciliation.ErrInvalidBatch):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func batchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: batch id must be a uuid", httpx.ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}
