package ledger

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryLedgerRepo struct {
	entries map[uuid.UUID]Entry
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{entries: make(map[uuid.UUID]Entry)}
}

func (r *memoryLedgerRepo) add(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.entries[e.ID] = e
	return e
}

func (r *memoryLedgerRepo) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryLedgerRepo) FindByReference(ctx context.Context, reference string) (*Entry, error) {
	for _, e := range r.entries {
		if e.Reference == reference {
			out := e
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memoryLedgerRepo) MarkCompleted(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	for _, id := range ids {
		e, ok := r.entries[id]
		if !ok {
			return ErrNotFound
		}
		if e.Status != StatusPending {
			return ErrNotPending
		}
		e.Status = StatusCompleted
		e.CompletedAt = &at
		r.entries[id] = e
	}
	return nil
}

func (r *memoryLedgerRepo) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusPending {
		return ErrNotPending
	}
	e.Status = StatusFailed
	e.CompletedAt = &at
	r.entries[id] = e
	return nil
}

func (r *memoryLedgerRepo) ListByAccount(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	filter.Normalize()
	var matched []Entry
	for _, e := range r.entries {
		if e.AccountID != filter.AccountID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memoryLedgerRepo) ListStuckPending(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	cutoff := time.Now().Add(-olderThan)
	var out []Entry
	for _, e := range r.entries {
		if e.Status == StatusPending && e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) StatementRows(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.AccountID != accountID || e.Status != StatusCompleted {
			continue
		}
		if e.CreatedAt.Before(from) || e.CreatedAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func TestNewReferencePrefixes(t *testing.T) {
	cases := map[EntryType]string{
		TypeDeposit:        "DEP",
		TypeWithdrawal:     "WTH",
		TypeTransferDebit:  "TRF",
		TypeTransferCredit: "TRC",
	}
	for entryType, prefix := range cases {
		ref := NewReference(entryType)
		require.Len(t, ref, 11)
		require.True(t, strings.HasPrefix(ref, prefix))
		require.Equal(t, strings.ToUpper(ref), ref)
	}
}

func TestCreditReference(t *testing.T) {
	require.Equal(t, "TRF1A2B3C4D-CR", CreditReference("TRF1A2B3C4D"))
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{}
	f.Normalize()
	require.Equal(t, 1, f.Page)
	require.Equal(t, 20, f.Limit)

	f = ListFilter{Page: 3, Limit: 500}
	f.Normalize()
	require.Equal(t, 3, f.Page)
	require.Equal(t, 100, f.Limit)
}

func TestStatementSumsCompletedActivity(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)
	accountID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	repo.add(Entry{AccountID: accountID, Type: TypeDeposit, Status: StatusCompleted,
		Amount: decimal.RequireFromString("1000"), CreatedAt: base.Add(1 * time.Hour)})
	repo.add(Entry{AccountID: accountID, Type: TypeWithdrawal, Status: StatusCompleted,
		Amount: decimal.RequireFromString("300"), CreatedAt: base.Add(2 * time.Hour)})
	repo.add(Entry{AccountID: accountID, Type: TypeTransferCredit, Status: StatusCompleted,
		Amount: decimal.RequireFromString("50"), CreatedAt: base.Add(3 * time.Hour)})
	// PENDING and out-of-range entries stay out of the statement.
	repo.add(Entry{AccountID: accountID, Type: TypeDeposit, Status: StatusPending,
		Amount: decimal.RequireFromString("999"), CreatedAt: base.Add(4 * time.Hour)})
	repo.add(Entry{AccountID: accountID, Type: TypeDeposit, Status: StatusCompleted,
		Amount: decimal.RequireFromString("777"), CreatedAt: base.AddDate(0, 1, 0)})

	stmt, err := svc.Statement(context.Background(), accountID, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stmt.Entries, 3)
	require.True(t, stmt.TotalCredits.Equal(decimal.RequireFromString("1050")))
	require.True(t, stmt.TotalDebits.Equal(decimal.RequireFromString("300")))
}

func TestStatementRejectsInvertedRange(t *testing.T) {
	svc := NewService(newMemoryLedgerRepo())
	now := time.Now()
	_, err := svc.Statement(context.Background(), uuid.New(), now, now.Add(-time.Hour))
	require.Error(t, err)
}

func TestHistoryPagination(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)
	accountID := uuid.New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		repo.add(Entry{AccountID: accountID, Type: TypeDeposit, Status: StatusCompleted,
			Amount: decimal.RequireFromString("1"), CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	entries, total, err := svc.History(context.Background(), ListFilter{AccountID: accountID, Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 25, total)
	require.Len(t, entries, 10)
	// Newest first: page 2 starts at the 11th most recent entry.
	require.True(t, entries[0].CreatedAt.After(entries[9].CreatedAt))
}

func TestResolveFailed(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)

	pending := repo.add(Entry{AccountID: uuid.New(), Type: TypeDeposit, Status: StatusPending,
		Amount: decimal.RequireFromString("10"), Reference: "DEP00000001", CreatedAt: time.Now()})

	resolved, err := svc.ResolveFailed(context.Background(), pending.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, resolved.Status)
	require.NotNil(t, resolved.CompletedAt)

	// Terminal states are final.
	_, err = svc.ResolveFailed(context.Background(), pending.ID)
	require.ErrorIs(t, err, ErrNotPending)

	_, err = svc.ResolveFailed(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
