package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for ledger entries. Pending entries
// are created inside the engine's atomic unit of work; everything here runs
// against the pool. MarkCompleted is deliberately a separate commit from the
// balance mutation (see engine.Service).
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	FindByReference(ctx context.Context, reference string) (*Entry, error)
	MarkCompleted(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByAccount(ctx context.Context, filter ListFilter) ([]Entry, int, error)
	ListStuckPending(ctx context.Context, olderThan time.Duration) ([]Entry, error)
	StatementRows(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]Entry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the postgres-backed ledger repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, account_id, counterparty_account_id, type, amount, balance_before, balance_after, status, reference, transfer_group_id, description, created_at, completed_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.AccountID, &e.CounterpartyAccountID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
		&e.Status, &e.Reference, &e.TransferGroupID, &e.Description, &e.CreatedAt, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.CounterpartyAccountID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.Status, &e.Reference, &e.TransferGroupID, &e.Description, &e.CreatedAt, &e.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id=$1`, id)
	return scanEntry(row)
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*Entry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE reference=$1`, reference)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) MarkCompleted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE ledger_entries SET status=$2, completed_at=$3 WHERE id = ANY($1) AND status=$4`,
		ids, StatusCompleted, at, StatusPending)
	if err != nil {
		return err
	}
	if int(cmd.RowsAffected()) != len(ids) {
		return fmt.Errorf("ledger: promoted %d of %d entries: %w", cmd.RowsAffected(), len(ids), ErrNotPending)
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	cmd, err := r.db.Exec(ctx,
		`UPDATE ledger_entries SET status=$2, completed_at=$3 WHERE id=$1 AND status=$4`,
		id, StatusFailed, at, StatusPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

func (r *repository) ListByAccount(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	filter.Normalize()
	where := `WHERE account_id=$1`
	args := []any{filter.AccountID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(" AND type=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM ledger_entries %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		entryColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repository) ListStuckPending(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE status=$1 AND created_at < $2 ORDER BY created_at ASC`,
		StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *repository) StatementRows(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
WHERE account_id=$1 AND status=$2 AND created_at >= $3 AND created_at <= $4 ORDER BY created_at ASC`,
		accountID, StatusCompleted, from, to)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}
