package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/meridian-bank/meridian-core/internal/engine"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotifyTransaction is the task type for transaction notifications.
	TaskTypeNotifyTransaction = "notify:transaction"
	// TaskTypeLedgerRepairScan is the task type for the stuck-PENDING scan.
	TaskTypeLedgerRepairScan = "ledger:repair_scan"
)

// NewNotifyTransactionTask constructs an Asynq task from a transaction event.
func NewNotifyTransactionTask(event engine.TransactionEvent) (*asynq.Task, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyTransaction, data), nil
}

// NewLedgerRepairScanTask constructs the periodic repair scan task.
func NewLedgerRepairScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLedgerRepairScan, nil)
}

// HandleNotifyTransactionTask processes TaskTypeNotifyTransaction tasks.
func HandleNotifyTransactionTask(ctx context.Context, t *asynq.Task) error {
	var event engine.TransactionEvent
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	// Placeholder: route to SMS/email providers once channels are configured.
	fmt.Printf("[jobs] transaction alert account=%s type=%s amount=%s reference=%s\n",
		event.AccountID, event.Type, event.Amount, event.Reference)
	return nil
}
