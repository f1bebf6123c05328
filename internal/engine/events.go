package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-bank/meridian-core/internal/ledger"
)

// TransactionEvent is emitted once per affected account after an entry
// reaches COMPLETED. Delivery is at-most-once-attempted: the engine hands it
// to the dispatcher and moves on.
type TransactionEvent struct {
	TransactionID uuid.UUID        `json:"transaction_id"`
	AccountID     uuid.UUID        `json:"account_id"`
	Type          ledger.EntryType `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	BalanceBefore decimal.Decimal  `json:"balance_before"`
	BalanceAfter  decimal.Decimal  `json:"balance_after"`
	Reference     string           `json:"reference"`
	Description   string           `json:"description"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

func eventFromEntry(e ledger.Entry, at time.Time) TransactionEvent {
	return TransactionEvent{
		TransactionID: e.ID,
		AccountID:     e.AccountID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: e.BalanceBefore,
		BalanceAfter:  e.BalanceAfter,
		Reference:     e.Reference,
		Description:   e.Description,
		OccurredAt:    at,
	}
}
