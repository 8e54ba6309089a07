package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPettyCashIntegrity recomputes petty-cash balances from their movements.
	TaskPettyCashIntegrity = "caja:petty_cash_integrity"
	// TaskIdempotencyCleanup removes idempotency keys past their retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// PettyCashIntegrityPayload scopes an integrity scan. BranchID zero scans
// every branch.
type PettyCashIntegrityPayload struct {
	BranchID int64 `json:"branch_id"`
}

// NewPettyCashIntegrityTask constructs an integrity scan task.
func NewPettyCashIntegrityTask(branchID int64) (*asynq.Task, error) {
	body, err := json.Marshal(PettyCashIntegrityPayload{BranchID: branchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPettyCashIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window in seconds.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// Retention converts the payload into a duration.
func (p IdempotencyCleanupPayload) Retention() time.Duration {
	return time.Duration(p.RetentionSeconds) * time.Second
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
