//go:generate mockgen -source=./interface.go -destination=./mock/storage.go -package=storagemock
package storage

import (
	"context"

	"github.com/google/uuid"

	"promarket/internal/app/model"
)

type AccountRepository interface {
	// Create a new model.Account
	Create(ctx context.Context, m *model.Account) (*model.Account, error)
	// Read instance of model.Account
	Read(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// ReadByEmailAndPassword instance of model.Account
	ReadByEmailAndPassword(ctx context.Context, email string, password string) (*model.Account, error)
	// Balance returns the materialized balance of the account
	Balance(ctx context.Context, id uuid.UUID) (int64, error)
}

type LedgerRepository interface {
	// Append a transaction as one atomic unit: idempotency-key dedup,
	// balance check for debits, insert, materialized balance update.
	// Appends for the same account are serialized with each other. A
	// replayed key returns the committed row with apperr.ErrDuplicateKey.
	Append(ctx context.Context, m *model.Transaction) (*model.Transaction, error)
	// ListByAccount returns up to limit transactions, most recent first
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*model.Transaction, error)
	// SumByAccount recomputes the balance from the full history
	SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	// FindByKey looks up a transaction by idempotency key
	FindByKey(ctx context.Context, accountID uuid.UUID, key string) (*model.Transaction, error)
}

type ProposalRepository interface {
	// Create a new model.Proposal
	Create(ctx context.Context, m *model.Proposal) (*model.Proposal, error)
	// AllByAccountID returns all proposals of the account
	AllByAccountID(ctx context.Context, accountID uuid.UUID) ([]*model.Proposal, error)
}
