package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/royaltyops/royaltyops/internal/jobs"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
)

// BatchProcessor executes queued reconciliation requests.
type BatchProcessor interface {
	ExecuteProcess(ctx context.Context, req reconciliation.ProcessRequest) (reconciliation.ProcessOutcome, error)
}

// ReconciliationProcessJob creates payouts for a validated batch.
type ReconciliationProcessJob struct {
	Service BatchProcessor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconciliationProcessJob constructs the job handler.
func NewReconciliationProcessJob(service BatchProcessor, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconciliationProcessJob {
	return &ReconciliationProcessJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle runs the request. Rejections and unknown batches are not retried.
func (j *ReconciliationProcessJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("reconciliation process: dependencies not configured")
	}
	var req reconciliation.ProcessRequest
	if err := json.Unmarshal(task.Payload(), &req); err != nil {
		return fmt.Errorf("reconciliation process: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskReconciliationProcess)
	outcome, err := j.Service.ExecuteProcess(ctx, req)
	if err != nil {
		logger := j.log().With(slog.String("batch_id", req.BatchID.String()), slog.String("period", req.Period().Label()))
		var perr *reconciliation.ProcessError
		if errors.As(err, &perr) || errors.Is(err, reconciliation.ErrBatchNotFound) {
			logger.Warn("batch process rejected", slog.Any("error", err))
			return tracker.End(fmt.Errorf("%w: %w", err, asynq.SkipRetry))
		}
		logger.Error("batch process failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.log().Info("batch processed",
		slog.String("batch_id", outcome.BatchID.String()),
		slog.String("period", outcome.Period.Label()),
		slog.Int("payouts", len(outcome.Payouts)))
	return tracker.End(nil)
}

func (j *ReconciliationProcessJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReconciliationProcessJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconciliationProcess))
	}
	return slog.Default().With(slog.String("job", TaskReconciliationProcess))
}
