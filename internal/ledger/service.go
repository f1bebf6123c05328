package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service exposes read and reconciliation operations over the ledger.
// Writing entries is the transaction engine's job.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns one entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Entry, error) {
	return s.repo.Get(ctx, id)
}

// History lists an account's entries, newest first, with the total count for
// pagination.
func (s *Service) History(ctx context.Context, filter ListFilter) ([]Entry, int, error) {
	return s.repo.ListByAccount(ctx, filter)
}

// Statement aggregates the COMPLETED activity of an account over a period.
func (s *Service) Statement(ctx context.Context, accountID uuid.UUID, from, to time.Time) (Statement, error) {
	if from.After(to) {
		return Statement{}, errors.New("ledger: statement start must not be after end")
	}
	entries, err := s.repo.StatementRows(ctx, accountID, from, to)
	if err != nil {
		return Statement{}, err
	}
	stmt := Statement{
		AccountID:    accountID,
		From:         from,
		To:           to,
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
		Entries:      entries,
	}
	for _, e := range entries {
		if e.IsCredit() {
			stmt.TotalCredits = stmt.TotalCredits.Add(e.Amount)
		} else {
			stmt.TotalDebits = stmt.TotalDebits.Add(e.Amount)
		}
	}
	return stmt, nil
}

// ResolveFailed marks a stuck PENDING entry as FAILED. This is the manual
// half of the reconciliation path: the repair scan only reports, and an
// operator confirms the balance mutation never applied before calling this.
func (s *Service) ResolveFailed(ctx context.Context, id uuid.UUID) (Entry, error) {
	if err := s.repo.MarkFailed(ctx, id, s.now()); err != nil {
		return Entry{}, err
	}
	return s.repo.Get(ctx, id)
}
