package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/royaltyops/royaltyops/internal/jobs"
	"github.com/royaltyops/royaltyops/internal/ledger"
)

// LedgerVerifier runs the ledger self-check.
type LedgerVerifier interface {
	Owners(ctx context.Context) ([]uuid.UUID, error)
	Verify(ctx context.Context, owner uuid.UUID) (ledger.VerifyResult, error)
}

// LedgerIntegrityJob checks every owner's persisted ledger against its payouts.
type LedgerIntegrityJob struct {
	Service LedgerVerifier
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(service LedgerVerifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle verifies each owner. Findings are logged; only read failures fail the job.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("ledger verify: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskLedgerVerify)
	owners, err := j.Service.Owners(ctx)
	if err != nil {
		j.log().Error("list owners", slog.Any("error", err))
		return tracker.End(err)
	}
	dirty := 0
	for _, owner := range owners {
		res, err := j.Service.Verify(ctx, owner)
		if err != nil {
			j.log().Error("verify ledger", slog.String("owner_id", owner.String()), slog.Any("error", err))
			return tracker.End(err)
		}
		if res.Clean() {
			continue
		}
		dirty++
		j.log().Warn("ledger integrity findings",
			slog.String("owner_id", owner.String()),
			slog.Int("violations", len(res.Violations)),
			slog.Int("drift", len(res.Drift)))
	}
	j.log().Info("ledger integrity check executed", slog.Int("owners", len(owners)), slog.Int("dirty", dirty))
	return tracker.End(nil)
}

func (j *LedgerIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerVerify))
	}
	return slog.Default().With(slog.String("job", TaskLedgerVerify))
}
