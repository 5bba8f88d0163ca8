package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lojapet/lojapet-core/internal/ledger"
)

// LedgerReconcileJob runs the drift scan: every product and variant pool whose
// cached stock disagrees with the ledger running sum is logged for follow-up.
// The scan is read-only; it never repairs stock on its own.
type LedgerReconcileJob struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewLedgerReconcileJob constructs the job.
func NewLedgerReconcileJob(svc *ledger.Service, logger *slog.Logger) *LedgerReconcileJob {
	return &LedgerReconcileJob{ledger: svc, logger: logger}
}

// Handle processes TaskLedgerReconcile tasks.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	drifts, err := j.ledger.Reconcile(ctx)
	if err != nil {
		return err
	}
	if len(drifts) == 0 {
		j.logger.Info("ledger reconcile clean", slog.Time("scheduled_for", payload.ScheduledFor))
		return nil
	}

	for _, d := range drifts {
		attrs := []any{
			slog.String("product_id", d.ProductID.String()),
			slog.Int64("cached", d.Cached),
			slog.Int64("ledger_sum", d.LedgerSum),
		}
		if d.VariantID != nil {
			attrs = append(attrs, slog.String("variant_id", d.VariantID.String()))
		}
		j.logger.Error("stock drift detected", attrs...)
	}
	j.logger.Error("ledger reconcile found drift", slog.Int("pools", len(drifts)))
	return nil
}
