package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile is the task type for the stock drift check.
	TaskStockReconcile = "stock:reconcile"
	// TaskIdempotencyCleanup is the task type for expiring processed keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// StockReconcilePayload scopes a reconcile run. Zero TenantID scans all
// tenants.
type StockReconcilePayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewStockReconcileTask constructs an Asynq task.
func NewStockReconcileTask(payload StockReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, data), nil
}

// IdempotencyCleanupPayload controls key retention.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
