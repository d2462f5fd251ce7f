// Package ledger holds the credit ledger core: the transaction recorder, the
// balance engine, the reconciliation path and the consumption guard. All
// writes go through an append-only storage.LedgerRepository; nothing in this
// package ever updates or deletes a committed transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"promarket/internal/app/apperr"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

// StatementLimit is the number of recent transactions served with a balance.
const StatementLimit = 10

type Service struct {
	ledger   storage.LedgerRepository
	accounts storage.AccountRepository
}

func (s *Service) LoggerComponent() string {
	return "Ledger.Service"
}

func NewService(ledger storage.LedgerRepository, accounts storage.AccountRepository) *Service {
	return &Service{
		ledger:   ledger,
		accounts: accounts,
	}
}

// Credit records earned or purchased credits. It is the only path that
// creates CREDIT entries outside of guard compensation.
func (s *Service) Credit(ctx context.Context, accountID uuid.UUID, amount int64, source model.Source, description string) (*model.Transaction, error) {
	return s.CreditKeyed(ctx, accountID, amount, source, description, "")
}

// CreditKeyed is Credit with an idempotency key, used by retried upstream
// triggers (purchase confirmations, guard refunds). A replayed key returns
// the committed transaction and no error; a replay with a different amount
// is a conflict.
func (s *Service) CreditKeyed(ctx context.Context, accountID uuid.UUID, amount int64, source model.Source, description string, key string) (*model.Transaction, error) {
	if err := validate(amount, source); err != nil {
		return nil, err
	}

	m, err := s.ledger.Append(ctx, &model.Transaction{
		AccountID:      accountID,
		Amount:         amount,
		Kind:           model.KindCredit,
		Source:         source,
		Description:    description,
		IdempotencyKey: key,
	})
	if errors.Is(err, apperr.ErrDuplicateKey) {
		l := logger.Get(ctx, s)
		if m.Amount != amount {
			l.Debug().Str("key", key).Int64("recorded_amount", m.Amount).Msg("Replay with different amount")
			return nil, apperr.ErrConflict
		}
		l.Debug().Str("key", key).Msg("Credit replay")
		return m, nil
	}

	return m, err
}

// Debit records consumed credits. The balance check and the append are one
// atomic unit in storage; a debit that would take the balance below zero
// fails with apperr.ErrInsufficientBalance and appends nothing. A replayed
// idempotency key returns the committed transaction with
// apperr.ErrDuplicateKey so the caller can tell a replay from a fresh debit.
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount int64, source model.Source, description string, key string) (*model.Transaction, error) {
	if err := validate(amount, source); err != nil {
		return nil, err
	}

	return s.ledger.Append(ctx, &model.Transaction{
		AccountID:      accountID,
		Amount:         amount,
		Kind:           model.KindDebit,
		Source:         source,
		Description:    description,
		IdempotencyKey: key,
	})
}

// Balance returns the account's current balance. An account with no
// transactions has balance zero.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.accounts.Balance(ctx, accountID)
}

// Recent returns up to n transactions, most recent first.
func (s *Service) Recent(ctx context.Context, accountID uuid.UUID, n int) ([]*model.Transaction, error) {
	return s.ledger.ListByAccount(ctx, accountID, n)
}

type Statement struct {
	Balance int64                `json:"balance"`
	Recent  []*model.Transaction `json:"recentTransactions"`
}

// GetStatement answers the read-query contract of the UI layer: current
// balance plus the last StatementLimit transactions.
func (s *Service) GetStatement(ctx context.Context, accountID uuid.UUID) (*Statement, error) {
	balance, err := s.accounts.Balance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}

	recent, err := s.ledger.ListByAccount(ctx, accountID, StatementLimit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return &Statement{Balance: balance, Recent: recent}, nil
}

// Correct is the administrative reconciliation path. A positive delta becomes
// a CREDIT, a negative one a DEBIT, both tagged admin_correction. Negative
// deltas remain subject to the non-negative balance invariant. There is no
// path that rewrites or deletes history.
func (s *Service) Correct(ctx context.Context, accountID uuid.UUID, delta int64, description string) (*model.Transaction, error) {
	l := logger.Get(ctx, s)
	l.Info().Str("account_id", accountID.String()).Int64("delta", delta).Msg("Admin correction")

	if delta == 0 {
		return nil, apperr.ErrInvalidAmount
	}

	if delta > 0 {
		return s.Credit(ctx, accountID, delta, model.SourceCorrection, description)
	}

	return s.Debit(ctx, accountID, -delta, model.SourceCorrection, description, "")
}

// Audit recomputes the balance from the full history and compares it with the
// materialized value. The two must never diverge.
func (s *Service) Audit(ctx context.Context, accountID uuid.UUID) error {
	materialized, err := s.accounts.Balance(ctx, accountID)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}

	recomputed, err := s.ledger.SumByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("sum: %w", err)
	}

	if materialized != recomputed {
		return fmt.Errorf("balance cache diverged: materialized=%d ledger=%d: %w",
			materialized, recomputed, apperr.ErrConflict)
	}

	return nil
}

func validate(amount int64, source model.Source) error {
	if amount <= 0 {
		return apperr.ErrInvalidAmount
	}
	if !source.Valid() {
		return apperr.ErrInvalidInput
	}
	return nil
}
