package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/lojapet/lojapet-core/internal/catalog"
)

// PromoSweepJob clears time-bound promotional prices whose expiry has passed.
// The pricing resolver already treats them as inactive; the sweep is catalog
// hygiene so admin views and caches stop carrying dead promos.
type PromoSweepJob struct {
	catalog *catalog.Service
	logger  *slog.Logger
}

// NewPromoSweepJob constructs the job.
func NewPromoSweepJob(svc *catalog.Service, logger *slog.Logger) *PromoSweepJob {
	return &PromoSweepJob{catalog: svc, logger: logger}
}

// Handle processes TaskPromoSweep tasks.
func (j *PromoSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	cleared, err := j.catalog.ClearExpiredPromotions(ctx)
	if err != nil {
		return err
	}
	j.logger.Info("promo sweep done", slog.Int64("cleared", cleared))
	return nil
}
