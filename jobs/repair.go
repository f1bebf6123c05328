package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-core/internal/ledger"
	"github.com/meridian-bank/meridian-core/internal/observability"
)

// StuckPendingLister is the slice of the ledger repository the repair scan
// needs.
type StuckPendingLister interface {
	ListStuckPending(ctx context.Context, olderThan time.Duration) ([]ledger.Entry, error)
}

// RepairScanJob reports ledger entries stuck in PENDING past the threshold.
// It never promotes or fails them itself: the balance mutation may or may not
// have committed, and only an operator can tell which.
type RepairScanJob struct {
	Repo      StuckPendingLister
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	OlderThan time.Duration
}

// NewRepairScanJob initialises the repair scan handler.
func NewRepairScanJob(repo StuckPendingLister, logger *slog.Logger, metrics *observability.Metrics, olderThan time.Duration) *RepairScanJob {
	if olderThan <= 0 {
		olderThan = 15 * time.Minute
	}
	return &RepairScanJob{Repo: repo, Logger: logger, Metrics: metrics, OlderThan: olderThan}
}

// Handle executes the scan.
func (j *RepairScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("repair scan: handler not configured")
	}
	entries, err := j.Repo.ListStuckPending(ctx, j.OlderThan)
	if err != nil {
		j.Logger.Error("repair scan failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetStuckPending(len(entries))
	if len(entries) == 0 {
		j.Logger.Info("repair scan clean", slog.Duration("older_than", j.OlderThan))
		return nil
	}
	for _, e := range entries {
		j.Logger.Warn("ledger entry stuck in PENDING",
			slog.String("entry_id", e.ID.String()),
			slog.String("reference", e.Reference),
			slog.String("type", string(e.Type)),
			slog.Time("created_at", e.CreatedAt),
		)
	}
	j.Logger.Warn("repair scan found stuck entries", slog.Int("count", len(entries)))
	return nil
}
