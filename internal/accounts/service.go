package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceConfig carries the bank identity used in account numbers.
type ServiceConfig struct {
	BankCode   string
	BranchCode string
}

// Service handles account lifecycle operations. Balance mutation is the
// transaction engine's job and is deliberately absent here.
type Service struct {
	repo Repository
	cfg  ServiceConfig
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenInput describes a new account request.
type OpenInput struct {
	HolderName     string
	Currency       string
	OpeningBalance decimal.Decimal
}

// Open creates a PENDING account with a generated account number. Accounts
// become usable only after activation.
func (s *Service) Open(ctx context.Context, input OpenInput) (Account, error) {
	if strings.TrimSpace(input.HolderName) == "" {
		return Account{}, errors.New("accounts: holder name required")
	}
	if input.OpeningBalance.IsNegative() {
		return Account{}, errors.New("accounts: opening balance must not be negative")
	}
	number, err := GenerateAccountNumber(s.cfg.BankCode, s.cfg.BranchCode, input.Currency)
	if err != nil {
		return Account{}, err
	}
	account := Account{
		ID:         uuid.New(),
		Number:     number,
		HolderName: input.HolderName,
		Currency:   input.Currency,
		Balance:    input.OpeningBalance,
		Status:     StatusPending,
	}
	return s.repo.Create(ctx, account)
}

// Activate moves a PENDING or INACTIVE account to ACTIVE.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.UpdateStatus(ctx, id, StatusPending, StatusActive); err == nil {
		return nil
	} else if !errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return s.repo.UpdateStatus(ctx, id, StatusInactive, StatusActive)
}

// Deactivate moves an ACTIVE account to INACTIVE.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.UpdateStatus(ctx, id, StatusActive, StatusInactive)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns the account carrying the given number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Account, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns all accounts, newest first.
func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}
