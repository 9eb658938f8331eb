package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/royaltyops/royaltyops/internal/jobs"
	"github.com/royaltyops/royaltyops/internal/ledger"
)

// LedgerRegenerator rebuilds persisted ledgers.
type LedgerRegenerator interface {
	Regenerate(ctx context.Context, owner uuid.UUID) (ledger.RegenerateResult, error)
	RegenerateAll(ctx context.Context) ([]ledger.RegenerateResult, error)
}

// LedgerRegenerateJob rebuilds balance_entries from payouts.
type LedgerRegenerateJob struct {
	Service LedgerRegenerator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerRegenerateJob constructs the job handler.
func NewLedgerRegenerateJob(service LedgerRegenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRegenerateJob {
	return &LedgerRegenerateJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the regeneration.
func (j *LedgerRegenerateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("ledger regenerate: dependencies not configured")
	}
	var payload LedgerRegeneratePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger regenerate: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	scope := strings.TrimSpace(payload.OwnerID)
	var owner uuid.UUID
	if scope != "" && scope != ScopeAll {
		id, err := uuid.Parse(scope)
		if err != nil || id == uuid.Nil {
			return fmt.Errorf("ledger regenerate: invalid owner %q: %w", scope, asynq.SkipRetry)
		}
		owner = id
	}

	tracker := j.metrics().Track(TaskLedgerRegenerate)
	start := j.now()
	results, err := j.run(ctx, owner)
	if err != nil {
		j.log().Error("regenerate ledgers", slog.String("scope", scopeLabel(owner)), slog.Any("error", err))
		return tracker.End(err)
	}

	drift := 0
	for _, res := range results {
		drift += len(res.Drift)
	}
	j.log().Info("regenerated ledgers",
		slog.String("scope", scopeLabel(owner)),
		slog.Int("owners", len(results)),
		slog.Int("drift", drift),
		slog.Duration("duration", j.now().Sub(start)))
	return tracker.End(nil)
}

func (j *LedgerRegenerateJob) run(ctx context.Context, owner uuid.UUID) ([]ledger.RegenerateResult, error) {
	if owner == uuid.Nil {
		return j.Service.RegenerateAll(ctx)
	}
	res, err := j.Service.Regenerate(ctx, owner)
	if err != nil {
		return nil, err
	}
	return []ledger.RegenerateResult{res}, nil
}

func scopeLabel(owner uuid.UUID) string {
	if owner == uuid.Nil {
		return ScopeAll
	}
	return owner.String()
}

func (j *LedgerRegenerateJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LedgerRegenerateJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerRegenerate))
	}
	return slog.Default().With(slog.String("job", TaskLedgerRegenerate))
}

func (j *LedgerRegenerateJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *LedgerRegenerateJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
