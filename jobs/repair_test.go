package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-bank/meridian-core/internal/ledger"
	"github.com/meridian-bank/meridian-core/internal/observability"
)

type stubLister struct {
	entries []ledger.Entry
	err     error
	gotAge  time.Duration
}

func (s *stubLister) ListStuckPending(ctx context.Context, olderThan time.Duration) ([]ledger.Entry, error) {
	s.gotAge = olderThan
	return s.entries, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRepairScanReportsStuckEntries(t *testing.T) {
	lister := &stubLister{entries: []ledger.Entry{
		{ID: uuid.New(), Reference: "DEP0A1B2C3D", Type: ledger.TypeDeposit, Status: ledger.StatusPending, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: uuid.New(), Reference: "TRF0A1B2C3D", Type: ledger.TypeTransferDebit, Status: ledger.StatusPending, CreatedAt: time.Now().Add(-2 * time.Hour)},
	}}
	job := NewRepairScanJob(lister, discardLogger(), observability.NewMetrics(), 30*time.Minute)

	require.NoError(t, job.Handle(context.Background(), NewLedgerRepairScanTask()))
	require.Equal(t, 30*time.Minute, lister.gotAge)

	// The scan only reports; the entries must still be PENDING.
	for _, e := range lister.entries {
		require.Equal(t, ledger.StatusPending, e.Status)
	}
}

func TestRepairScanCleanRun(t *testing.T) {
	lister := &stubLister{}
	job := NewRepairScanJob(lister, discardLogger(), observability.NewMetrics(), 0)

	require.NoError(t, job.Handle(context.Background(), NewLedgerRepairScanTask()))
	// Zero threshold falls back to the default.
	require.Equal(t, 15*time.Minute, lister.gotAge)
}

func TestRepairScanPropagatesRepoFailure(t *testing.T) {
	lister := &stubLister{err: errors.New("db unavailable")}
	job := NewRepairScanJob(lister, discardLogger(), observability.NewMetrics(), time.Minute)

	require.Error(t, job.Handle(context.Background(), NewLedgerRepairScanTask()))
}
