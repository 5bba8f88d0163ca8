package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lojapet/lojapet-core/internal/catalog"
)

// LowStockJob surfaces products at or below their minimum stock threshold so
// admins can restock before orders start failing.
type LowStockJob struct {
	catalog *catalog.Service
	logger  *slog.Logger
}

// NewLowStockJob constructs the job.
func NewLowStockJob(svc *catalog.Service, logger *slog.Logger) *LowStockJob {
	return &LowStockJob{catalog: svc, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	entries, err := j.catalog.ListLowStock(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		j.logger.Warn("product below minimum stock",
			slog.String("product_id", e.ProductID.String()),
			slog.String("name", e.Name),
			slog.Int64("stock", e.Stock),
			slog.Int64("min_stock", e.MinStock),
		)
	}
	j.logger.Info("low stock scan done", slog.Int("flagged", len(entries)))
	return nil
}
