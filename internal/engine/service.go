package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-bank/meridian-core/internal/accounts"
	"github.com/meridian-bank/meridian-core/internal/ledger"
)

// TxRepository exposes the operations available inside one atomic unit of
// work. GetAccountForUpdate blocks on the row lock until it is available;
// the lock is released when the unit commits or rolls back.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (accounts.Account, error)
	UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	CreatePendingEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
}

// Repository is the engine's persistence port. FindEntryByReference is the
// only read allowed to bypass the lock-then-validate sequence.
// MarkEntriesCompleted runs as its own commit, after the atomic unit.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	FindEntryByReference(ctx context.Context, reference string) (*ledger.Entry, error)
	GetTransferPair(ctx context.Context, groupID uuid.UUID) (ledger.Entry, ledger.Entry, error)
	MarkEntriesCompleted(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Dispatcher delivers post-commit notification events. It must never be
// invoked inside the lock scope and its failures never fail the transaction.
type Dispatcher interface {
	Dispatch(ctx context.Context, event TransactionEvent) error
}

// Service orchestrates deposits, withdrawals and transfers. It holds only
// injected dependencies and is safe for concurrent use.
type Service struct {
	repo       Repository
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
	newRef     func(ledger.EntryType) string
}

// NewService builds a Service instance.
func NewService(repo Repository, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		newRef:     ledger.NewReference,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReferenceGenerator overrides reference generation, for tests.
func (s *Service) WithReferenceGenerator(fn func(ledger.EntryType) string) {
	if fn != nil {
		s.newRef = fn
	}
}

// DepositInput describes a credit to a single account.
type DepositInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	Reference   string
}

// WithdrawInput describes a debit from a single account.
type WithdrawInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	Reference   string
}

// TransferInput describes a movement between two accounts.
type TransferInput struct {
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        decimal.Decimal
	Description   string
	Reference     string
}

// TransferResult carries both sides of a completed transfer.
type TransferResult struct {
	Debit  ledger.Entry `json:"debit"`
	Credit ledger.Entry `json:"credit"`
}

// Deposit credits an account. The ledger write and the balance mutation
// commit as one atomic unit; the status flip to COMPLETED is a second,
// independent commit.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (ledger.Entry, error) {
	if !input.Amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}

	reference := input.Reference
	supplied := reference != ""
	if !supplied {
		reference = s.newRef(ledger.TypeDeposit)
	} else if existing, err := s.findExisting(ctx, reference); err != nil {
		return ledger.Entry{}, err
	} else if existing != nil {
		return *existing, nil
	}

	var entry ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, input.AccountID)
		if err != nil {
			return err
		}
		if account.Status != accounts.StatusActive {
			return ErrAccountNotActive
		}
		entry = ledger.Entry{
			ID:            uuid.New(),
			AccountID:     account.ID,
			Type:          ledger.TypeDeposit,
			Amount:        input.Amount,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance.Add(input.Amount),
			Status:        ledger.StatusPending,
			Reference:     reference,
			Description:   input.Description,
		}
		if entry, err = tx.CreatePendingEntry(ctx, entry); err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, account.ID, entry.BalanceAfter)
	})
	if err != nil {
		return s.resolveSingleError(ctx, reference, supplied, err)
	}

	return s.finalizeSingle(ctx, entry)
}

// Withdraw debits an account. Sufficient funds are checked only after the
// row lock is held; a pre-lock read is never authoritative.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (ledger.Entry, error) {
	if !input.Amount.IsPositive() {
		return ledger.Entry{}, ErrInvalidAmount
	}

	reference := input.Reference
	supplied := reference != ""
	if !supplied {
		reference = s.newRef(ledger.TypeWithdrawal)
	} else if existing, err := s.findExisting(ctx, reference); err != nil {
		return ledger.Entry{}, err
	} else if existing != nil {
		return *existing, nil
	}

	var entry ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, input.AccountID)
		if err != nil {
			return err
		}
		if account.Status != accounts.StatusActive {
			return ErrAccountNotActive
		}
		if account.Balance.LessThan(input.Amount) {
			return ErrInsufficientFunds
		}
		entry = ledger.Entry{
			ID:            uuid.New(),
			AccountID:     account.ID,
			Type:          ledger.TypeWithdrawal,
			Amount:        input.Amount,
			BalanceBefore: account.Balance,
			BalanceAfter:  account.Balance.Sub(input.Amount),
			Status:        ledger.StatusPending,
			Reference:     reference,
			Description:   input.Description,
		}
		if entry, err = tx.CreatePendingEntry(ctx, entry); err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, account.ID, entry.BalanceAfter)
	})
	if err != nil {
		return s.resolveSingleError(ctx, reference, supplied, err)
	}

	return s.finalizeSingle(ctx, entry)
}

// Transfer moves funds between two accounts. Both ledger entries and both
// balance mutations commit together or not at all. Locks are always taken in
// ascending account-id order so opposing transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if input.FromAccountID == input.ToAccountID || !input.Amount.IsPositive() {
		return TransferResult{}, ErrInvalidAmount
	}

	debitRef := input.Reference
	supplied := debitRef != ""
	if !supplied {
		debitRef = s.newRef(ledger.TypeTransferDebit)
	} else if existing, err := s.findExisting(ctx, debitRef); err != nil {
		return TransferResult{}, err
	} else if existing != nil {
		return s.transferResultFor(ctx, *existing)
	}

	groupID := uuid.New()
	var debit, credit ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, dest, err := s.lockPair(ctx, tx, input.FromAccountID, input.ToAccountID)
		if err != nil {
			return err
		}
		if source.Status != accounts.StatusActive || dest.Status != accounts.StatusActive {
			return ErrAccountNotActive
		}
		if source.Balance.LessThan(input.Amount) {
			return ErrInsufficientFunds
		}

		debit = ledger.Entry{
			ID:                    uuid.New(),
			AccountID:             source.ID,
			CounterpartyAccountID: &dest.ID,
			Type:                  ledger.TypeTransferDebit,
			Amount:                input.Amount,
			BalanceBefore:         source.Balance,
			BalanceAfter:          source.Balance.Sub(input.Amount),
			Status:                ledger.StatusPending,
			Reference:             debitRef,
			TransferGroupID:       &groupID,
			Description:           input.Description,
		}
		credit = ledger.Entry{
			ID:                    uuid.New(),
			AccountID:             dest.ID,
			CounterpartyAccountID: &source.ID,
			Type:                  ledger.TypeTransferCredit,
			Amount:                input.Amount,
			BalanceBefore:         dest.Balance,
			BalanceAfter:          dest.Balance.Add(input.Amount),
			Status:                ledger.StatusPending,
			Reference:             ledger.CreditReference(debitRef),
			TransferGroupID:       &groupID,
			Description:           input.Description,
		}
		if debit, err = tx.CreatePendingEntry(ctx, debit); err != nil {
			return err
		}
		if credit, err = tx.CreatePendingEntry(ctx, credit); err != nil {
			return err
		}
		if err := tx.UpdateAccountBalance(ctx, source.ID, debit.BalanceAfter); err != nil {
			return err
		}
		return tx.UpdateAccountBalance(ctx, dest.ID, credit.BalanceAfter)
	})
	if err != nil {
		if supplied && errors.Is(err, ledger.ErrDuplicateReference) {
			if existing, ferr := s.repo.FindEntryByReference(ctx, debitRef); ferr == nil && existing != nil {
				return s.transferResultFor(ctx, *existing)
			}
		}
		if isBusinessError(err) {
			return TransferResult{}, err
		}
		return TransferResult{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	completedAt := s.now()
	if err := s.repo.MarkEntriesCompleted(ctx, []uuid.UUID{debit.ID, credit.ID}, completedAt); err != nil {
		s.logger.Error("ledger status promotion failed",
			slog.String("reference", debit.Reference), slog.Any("error", err))
		return TransferResult{Debit: debit, Credit: credit}, fmt.Errorf("%w: %v", ErrStatusPromotion, err)
	}
	debit = completed(debit, completedAt)
	credit = completed(credit, completedAt)

	// Each side carries its own notification preferences downstream.
	s.dispatch(ctx, eventFromEntry(debit, completedAt))
	s.dispatch(ctx, eventFromEntry(credit, completedAt))

	return TransferResult{Debit: debit, Credit: credit}, nil
}

// lockPair acquires both row locks in ascending account-id order and returns
// the accounts as (source, destination) regardless of lock order.
func (s *Service) lockPair(ctx context.Context, tx TxRepository, fromID, toID uuid.UUID) (accounts.Account, accounts.Account, error) {
	first, second := fromID, toID
	if bytes.Compare(toID[:], fromID[:]) < 0 {
		first, second = toID, fromID
	}
	a, err := tx.GetAccountForUpdate(ctx, first)
	if err != nil {
		return accounts.Account{}, accounts.Account{}, err
	}
	b, err := tx.GetAccountForUpdate(ctx, second)
	if err != nil {
		return accounts.Account{}, accounts.Account{}, err
	}
	if a.ID == fromID {
		return a, b, nil
	}
	return b, a, nil
}

func (s *Service) findExisting(ctx context.Context, reference string) (*ledger.Entry, error) {
	existing, err := s.repo.FindEntryByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return existing, nil
}

// transferResultFor reloads both sides of a transfer from either side's
// entry, for idempotent retries.
func (s *Service) transferResultFor(ctx context.Context, entry ledger.Entry) (TransferResult, error) {
	if entry.TransferGroupID == nil {
		return TransferResult{}, fmt.Errorf("%w: reference %q does not belong to a transfer", ErrInvalidAmount, entry.Reference)
	}
	debit, credit, err := s.repo.GetTransferPair(ctx, *entry.TransferGroupID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return TransferResult{Debit: debit, Credit: credit}, nil
}

// resolveSingleError turns an atomic-unit failure into the caller-facing
// result. The duplicate-reference refetch applies only to caller-supplied
// references; a collision on a generated one belongs to a different
// transaction, so it surfaces as a retryable infrastructure failure instead.
func (s *Service) resolveSingleError(ctx context.Context, reference string, supplied bool, err error) (ledger.Entry, error) {
	if supplied && errors.Is(err, ledger.ErrDuplicateReference) {
		// A concurrent request with the same reference won the insert race.
		if existing, ferr := s.repo.FindEntryByReference(ctx, reference); ferr == nil && existing != nil {
			return *existing, nil
		}
	}
	if isBusinessError(err) {
		return ledger.Entry{}, err
	}
	return ledger.Entry{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
}

func (s *Service) finalizeSingle(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	completedAt := s.now()
	if err := s.repo.MarkEntriesCompleted(ctx, []uuid.UUID{entry.ID}, completedAt); err != nil {
		// The balance mutation already committed. The entry stays PENDING
		// and is reconciled out of band; retrying here risks double effects.
		s.logger.Error("ledger status promotion failed",
			slog.String("reference", entry.Reference), slog.Any("error", err))
		return entry, fmt.Errorf("%w: %v", ErrStatusPromotion, err)
	}
	entry = completed(entry, completedAt)
	s.dispatch(ctx, eventFromEntry(entry, completedAt))
	return entry, nil
}

func (s *Service) dispatch(ctx context.Context, event TransactionEvent) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Warn("notification dispatch failed",
			slog.String("transaction_id", event.TransactionID.String()),
			slog.Any("error", err))
	}
}

func completed(entry ledger.Entry, at time.Time) ledger.Entry {
	entry.Status = ledger.StatusCompleted
	entry.CompletedAt = &at
	return entry
}

func isBusinessError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrAccountNotActive) ||
		errors.Is(err, ErrInsufficientFunds)
}
