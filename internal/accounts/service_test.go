package accounts

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryAccountRepo struct {
	accounts map[uuid.UUID]*Account
	byNumber map[string]uuid.UUID
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: make(map[uuid.UUID]*Account),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (r *memoryAccountRepo) Create(ctx context.Context, account Account) (Account, error) {
	if _, dup := r.byNumber[account.Number]; dup {
		return Account{}, ErrDuplicateNumber
	}
	stored := account
	r.accounts[account.ID] = &stored
	r.byNumber[account.Number] = account.ID
	return stored, nil
}

func (r *memoryAccountRepo) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *a, nil
}

func (r *memoryAccountRepo) GetByNumber(ctx context.Context, number string) (Account, error) {
	id, ok := r.byNumber[number]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *r.accounts[id], nil
}

func (r *memoryAccountRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to AccountStatus) error {
	a, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != from {
		return ErrInvalidTransition
	}
	a.Status = to
	return nil
}

func (r *memoryAccountRepo) List(ctx context.Context) ([]Account, error) {
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, ServiceConfig{BankCode: "212", BranchCode: "0001"})
}

func TestOpenCreatesPendingAccount(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := newTestService(repo)

	account, err := svc.Open(context.Background(), OpenInput{
		HolderName:     "Ada Lovelace",
		Currency:       "USD",
		OpeningBalance: decimal.RequireFromString("100"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, account.Status)
	require.True(t, account.Balance.Equal(decimal.RequireFromString("100")))
	require.Len(t, account.Number, 20)
	require.True(t, strings.HasPrefix(account.Number, "212000110"))
	require.True(t, ValidateAccountNumber(account.Number))
}

func TestOpenRejectsBlankHolder(t *testing.T) {
	svc := newTestService(newMemoryAccountRepo())

	_, err := svc.Open(context.Background(), OpenInput{
		HolderName: "   ",
		Currency:   "USD",
	})
	require.Error(t, err)
}

func TestOpenRejectsUnsupportedCurrency(t *testing.T) {
	svc := newTestService(newMemoryAccountRepo())

	_, err := svc.Open(context.Background(), OpenInput{
		HolderName: "Ada Lovelace",
		Currency:   "CHF",
	})
	require.Error(t, err)
}

func TestActivateLifecycle(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := newTestService(repo)

	account, err := svc.Open(context.Background(), OpenInput{
		HolderName: "Ada Lovelace",
		Currency:   "EUR",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Activate(context.Background(), account.ID))
	got, err := svc.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)

	require.NoError(t, svc.Deactivate(context.Background(), account.ID))
	got, err = svc.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInactive, got.Status)

	// INACTIVE accounts can be reactivated.
	require.NoError(t, svc.Activate(context.Background(), account.ID))
	got, err = svc.Get(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, got.Status)
}

func TestDeactivateRequiresActive(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := newTestService(repo)

	account, err := svc.Open(context.Background(), OpenInput{
		HolderName: "Ada Lovelace",
		Currency:   "GBP",
	})
	require.NoError(t, err)

	err = svc.Deactivate(context.Background(), account.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestGetByNumber(t *testing.T) {
	repo := newMemoryAccountRepo()
	svc := newTestService(repo)

	account, err := svc.Open(context.Background(), OpenInput{
		HolderName: "Ada Lovelace",
		Currency:   "USD",
	})
	require.NoError(t, err)

	got, err := svc.GetByNumber(context.Background(), account.Number)
	require.NoError(t, err)
	require.Equal(t, account.ID, got.ID)

	_, err = svc.GetByNumber(context.Background(), "21200011000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestActivateUnknownAccount(t *testing.T) {
	svc := newTestService(newMemoryAccountRepo())
	err := svc.Activate(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
