package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/lojapet/lojapet-core/internal/ledger"
	"github.com/lojapet/lojapet-core/internal/shared"
)

func TestScanTaskPayloads(t *testing.T) {
	at := time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)

	constructors := map[string]func(time.Time) (*asynq.Task, error){
		TaskLedgerReconcile: NewLedgerReconcileTask,
		TaskLowStockScan:    NewLowStockScanTask,
		TaskPromoSweep:      NewPromoSweepTask,
	}
	for taskType, build := range constructors {
		task, err := build(at)
		require.NoError(t, err)
		require.Equal(t, taskType, task.Type())

		var payload ScanPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		require.True(t, payload.ScheduledFor.Equal(at))
	}
}

type driftRepo struct {
	drifts []ledger.Drift
}

func (r *driftRepo) Record(context.Context, ledger.Movement) error { return nil }
func (r *driftRepo) LockProductStock(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}
func (r *driftRepo) LockVariantStock(context.Context, uuid.UUID) (int64, error) {
	return 0, nil
}
func (r *driftRepo) SetProductStock(context.Context, uuid.UUID, int64) error { return nil }
func (r *driftRepo) SetVariantStock(context.Context, uuid.UUID, int64) error { return nil }
func (r *driftRepo) List(context.Context, ledger.Filter) ([]ledger.Movement, error) {
	return nil, nil
}
func (r *driftRepo) ScanDrift(context.Context) ([]ledger.Drift, error) {
	return r.drifts, nil
}

type noopRunner struct{}

func (noopRunner) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestLedgerReconcileHandleLogsDrift(t *testing.T) {
	repo := &driftRepo{drifts: []ledger.Drift{
		{ProductID: uuid.New(), Cached: 10, LedgerSum: 7},
	}}
	svc := ledger.NewService(noopRunner{}, repo, shared.SystemClock{}, nil)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	job := NewLedgerReconcileJob(svc, logger)

	task, err := NewLedgerReconcileTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Contains(t, buf.String(), "stock drift detected")

	// A clean scan logs nothing at error level.
	repo.drifts = nil
	buf.Reset()
	require.NoError(t, job.Handle(context.Background(), task))
	require.NotContains(t, buf.String(), "drift detected")
}

func TestLedgerReconcileHandleRejectsBadPayload(t *testing.T) {
	svc := ledger.NewService(noopRunner{}, &driftRepo{}, shared.SystemClock{}, nil)
	job := NewLedgerReconcileJob(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	bad := asynq.NewTask(TaskLedgerReconcile, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}
