package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-bank/meridian-core/internal/accounts"
	"github.com/meridian-bank/meridian-core/internal/ledger"
	"github.com/meridian-bank/meridian-core/internal/platform/db"
)

type repository struct {
	pool   *pgxpool.Pool
	ledger ledger.Repository
}

// NewRepository builds the postgres-backed engine repository. The ledger
// repository handles status promotion so the PENDING guard lives in exactly
// one place.
func NewRepository(pool *pgxpool.Pool, ledgerRepo ledger.Repository) Repository {
	return &repository{pool: pool, ledger: ledgerRepo}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) FindEntryByReference(ctx context.Context, reference string) (*ledger.Entry, error) {
	return r.ledger.FindByReference(ctx, reference)
}

func (r *repository) GetTransferPair(ctx context.Context, groupID uuid.UUID) (ledger.Entry, ledger.Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, counterparty_account_id, type, amount, balance_before, balance_after, status, reference, transfer_group_id, description, created_at, completed_at
FROM ledger_entries WHERE transfer_group_id=$1 ORDER BY type`, groupID)
	if err != nil {
		return ledger.Entry{}, ledger.Entry{}, err
	}
	defer rows.Close()

	var debit, credit ledger.Entry
	var found int
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.CounterpartyAccountID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.Status, &e.Reference, &e.TransferGroupID, &e.Description, &e.CreatedAt, &e.CompletedAt); err != nil {
			return ledger.Entry{}, ledger.Entry{}, err
		}
		found++
		if e.IsCredit() {
			credit = e
		} else {
			debit = e
		}
	}
	if err := rows.Err(); err != nil {
		return ledger.Entry{}, ledger.Entry{}, err
	}
	if found != 2 {
		return ledger.Entry{}, ledger.Entry{}, fmt.Errorf("engine: transfer group %s has %d entries: %w", groupID, found, ledger.ErrNotFound)
	}
	return debit, credit, nil
}

func (r *repository) MarkEntriesCompleted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	return r.ledger.MarkCompleted(ctx, ids, at)
}

// txRepository runs every statement on one open transaction. Row locks taken
// by GetAccountForUpdate survive until the transaction ends.
type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (accounts.Account, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, number, holder_name, currency, balance, status, created_at, updated_at
FROM accounts WHERE id=$1 FOR UPDATE`, id)
	var a accounts.Account
	err := row.Scan(&a.ID, &a.Number, &a.HolderName, &a.Currency, &a.Balance, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (t *txRepository) UpdateAccountBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE accounts SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *txRepository) CreatePendingEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	row := t.tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (id, account_id, counterparty_account_id, type, amount, balance_before, balance_after, status, reference, transfer_group_id, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id, account_id, counterparty_account_id, type, amount, balance_before, balance_after, status, reference, transfer_group_id, description, created_at, completed_at`,
		entry.ID, entry.AccountID, entry.CounterpartyAccountID, entry.Type, entry.Amount, entry.BalanceBefore,
		entry.BalanceAfter, entry.Status, entry.Reference, entry.TransferGroupID, entry.Description)
	var e ledger.Entry
	err := row.Scan(&e.ID, &e.AccountID, &e.CounterpartyAccountID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
		&e.Status, &e.Reference, &e.TransferGroupID, &e.Description, &e.CreatedAt, &e.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.Entry{}, ledger.ErrDuplicateReference
		}
		return ledger.Entry{}, err
	}
	return e, nil
}
