package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ledgerhttp "github.com/royaltyops/royaltyops/internal/ledger/http"
	"github.com/royaltyops/royaltyops/internal/observability"
	"github.com/royaltyops/royaltyops/internal/platform/httpx"
	reconhttp "github.com/royaltyops/royaltyops/internal/reconciliation/http"
	"github.com/royaltyops/royaltyops/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	LedgerHandler         *ledgerhttp.Handler
	ReconciliationHandler *reconhttp.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(httpx.RequireOwner)
		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.ReconciliationHandler != nil {
			params.ReconciliationHandler.MountRoutes(r)
		}
	})

	return r
}
