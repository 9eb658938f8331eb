package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/royaltyops/royaltyops/internal/jobs"
	"github.com/royaltyops/royaltyops/internal/reconciliation"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRegenerate rebuilds persisted balance ledgers from payouts.
	TaskLedgerRegenerate = "ledger:regenerate"
	// TaskLedgerVerify runs the ledger self-check for every owner.
	TaskLedgerVerify = "ledger:verify"
	// TaskReconciliationProcess turns a complete batch into payouts.
	TaskReconciliationProcess = "reconciliation:process"

	// ScopeAll targets every owner with payouts.
	ScopeAll = "all"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LedgerRegeneratePayload scopes a regeneration run. OwnerID is a uuid or "all".
type LedgerRegeneratePayload struct {
	OwnerID string `json:"owner_id"`
}

// NewLedgerRegenerateTask creates a regeneration task. An empty owner means all owners.
func NewLedgerRegenerateTask(owner string) (*asynq.Task, error) {
	if owner == "" {
		owner = ScopeAll
	}
	body, err := json.Marshal(LedgerRegeneratePayload{OwnerID: owner})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRegenerate, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerVerifyTask creates the periodic self-check task.
func NewLedgerVerifyTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerVerify, nil, asynq.Queue(QueueDefault))
}

// NewReconciliationProcessTask creates a batch processing task.
func NewReconciliationProcessTask(req reconciliation.ProcessRequest) (*asynq.Task, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconciliationProcess, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
