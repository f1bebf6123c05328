package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-bank/meridian-core/internal/engine"
	"github.com/meridian-bank/meridian-core/internal/ledger"
	"github.com/meridian-bank/meridian-core/jobs"
)

func TestQueueDispatcherEnqueues(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewQueueDispatcher(client, logger)

	event := engine.TransactionEvent{
		TransactionID: uuid.New(),
		AccountID:     uuid.New(),
		Type:          ledger.TypeDeposit,
		Amount:        decimal.RequireFromString("100"),
		Reference:     "DEP0A1B2C3D",
		OccurredAt:    time.Now(),
	}
	require.NoError(t, dispatcher.Dispatch(context.Background(), event))
	require.NotEmpty(t, mr.Keys())
}

func TestQueueDispatcherReportsBrokerFailure(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	// Dropping the broker must surface as an error, which the engine logs
	// and swallows.
	mr.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewQueueDispatcher(client, logger)
	err = dispatcher.Dispatch(context.Background(), engine.TransactionEvent{
		TransactionID: uuid.New(),
		Reference:     "DEP0A1B2C3D",
	})
	require.Error(t, err)
}
