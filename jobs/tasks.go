package jobs

import "github.com/hibiken/asynq"

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskQuotationExpire sweeps sent quotations past their validity date.
	TaskQuotationExpire = "quotation:expire"
	// TaskInventoryReorderScan flags items that have fallen to their
	// reorder point.
	TaskInventoryReorderScan = "inventory:reorder_scan"
)

// NewQuotationExpireTask constructs the expiry sweep task. The sweep takes
// no parameters; it always works against the clock at execution time.
func NewQuotationExpireTask() *asynq.Task {
	return asynq.NewTask(TaskQuotationExpire, nil)
}

// NewReorderScanTask constructs the reorder scan task.
func NewReorderScanTask() *asynq.Task {
	return asynq.NewTask(TaskInventoryReorderScan, nil)
}
