package ledger

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType classifies a balance-affecting event. A transfer always produces
// a TRANSFER_DEBIT on the source and a TRANSFER_CREDIT on the destination.
type EntryType string

const (
	TypeDeposit        EntryType = "DEPOSIT"
	TypeWithdrawal     EntryType = "WITHDRAWAL"
	TypeTransferDebit  EntryType = "TRANSFER_DEBIT"
	TypeTransferCredit EntryType = "TRANSFER_CREDIT"
)

// EntryStatus is the entry state machine: PENDING -> COMPLETED on the happy
// path, PENDING -> FAILED when an operator resolves a stuck entry.
type EntryStatus string

const (
	StatusPending   EntryStatus = "PENDING"
	StatusCompleted EntryStatus = "COMPLETED"
	StatusFailed    EntryStatus = "FAILED"
)

// Entry is one ledger record. Amount and balance snapshots are write-once;
// only Status and CompletedAt change after creation.
type Entry struct {
	ID                    uuid.UUID       `json:"id"`
	AccountID             uuid.UUID       `json:"account_id"`
	CounterpartyAccountID *uuid.UUID      `json:"counterparty_account_id,omitempty"`
	Type                  EntryType       `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	BalanceBefore         decimal.Decimal `json:"balance_before"`
	BalanceAfter          decimal.Decimal `json:"balance_after"`
	Status                EntryStatus     `json:"status"`
	Reference             string          `json:"reference"`
	TransferGroupID       *uuid.UUID      `json:"transfer_group_id,omitempty"`
	Description           string          `json:"description"`
	CreatedAt             time.Time       `json:"created_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

// IsCredit reports whether the entry increases the account balance.
func (e Entry) IsCredit() bool {
	return e.Type == TypeDeposit || e.Type == TypeTransferCredit
}

var (
	// ErrNotFound indicates the entry does not exist.
	ErrNotFound = errors.New("ledger: entry not found")
	// ErrDuplicateReference indicates the reference is already taken.
	ErrDuplicateReference = errors.New("ledger: reference already exists")
	// ErrNotPending indicates a status transition from a terminal state.
	ErrNotPending = errors.New("ledger: entry is not pending")
)

var referencePrefixes = map[EntryType]string{
	TypeDeposit:        "DEP",
	TypeWithdrawal:     "WTH",
	TypeTransferDebit:  "TRF",
	TypeTransferCredit: "TRC",
}

// NewReference generates an opaque reference for an entry type: a three
// letter prefix followed by eight uppercase hex characters.
func NewReference(t EntryType) string {
	prefix, ok := referencePrefixes[t]
	if !ok {
		prefix = "TXN"
	}
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the host is broken; fall back to a uuid.
		return prefix + strings.ToUpper(uuid.NewString()[:8])
	}
	return prefix + strings.ToUpper(hex.EncodeToString(buf))
}

// CreditReference derives the credit-side reference of a transfer from the
// debit-side reference, keeping the pair correlated and unique.
func CreditReference(debitRef string) string {
	return debitRef + "-CR"
}

// ListFilter narrows account history queries.
type ListFilter struct {
	AccountID uuid.UUID
	Type      EntryType
	Status    EntryStatus
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// Normalize applies pagination defaults and bounds.
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// Statement summarises an account's completed activity over a period.
type Statement struct {
	AccountID    uuid.UUID       `json:"account_id"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	Entries      []Entry         `json:"entries"`
}
