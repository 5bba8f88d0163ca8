package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLedgerReconcile verifies cached stock against the ledger running sum.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskLowStockScan reports products at or below their minimum stock.
	TaskLowStockScan = "catalog:low_stock"
	// TaskPromoSweep clears expired time-bound promotional prices.
	TaskPromoSweep = "pricing:promo_sweep"
)

// ScanPayload carries scheduling metadata shared by the periodic scans.
type ScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerReconcileTask constructs an Asynq task for the reconciliation scan.
func NewLedgerReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewLowStockScanTask constructs an Asynq task for the restock report.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// NewPromoSweepTask constructs an Asynq task for the promotion sweep.
func NewPromoSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPromoSweep, body, asynq.Queue(QueueDefault)), nil
}
