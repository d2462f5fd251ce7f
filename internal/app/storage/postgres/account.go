package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"promarket/internal/app/apperr"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

// storage.AccountRepository interface implementation
var _ storage.AccountRepository = (*AccountRepository)(nil)

type AccountRepository struct {
	db *sql.DB
}

func (r *AccountRepository) LoggerComponent() string {
	return "AccountRepository"
}

func NewAccountRepository(db *sql.DB) (*AccountRepository, error) {
	s := &AccountRepository{
		db: db,
	}
	return s, nil
}

// Create implementation of interface storage.AccountRepository
func (r *AccountRepository) Create(ctx context.Context, m *model.Account) (*model.Account, error) {
	const SQL = `
		INSERT INTO accounts (email, password)
		VALUES ($1, crypt($2, gen_salt('bf')))
		RETURNING id
`

	err := r.db.QueryRowContext(ctx, SQL, m.Email, m.Password).Scan(&m.ID)
	if err != nil {
		if pgErr, ok := err.(*pg.Error); ok {
			if pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
				return nil, apperr.ErrConflict
			}
		}

		return nil, fmt.Errorf("insert: %w", err)
	}

	return m, nil
}

// Read implementation of interface storage.AccountRepository
func (r *AccountRepository) Read(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	const SQL = `
		SELECT id, email, balance
		FROM accounts
		WHERE id=$1
`
	m := &model.Account{}

	err := r.db.QueryRowContext(ctx, SQL, id).Scan(&m.ID, &m.Email, &m.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// ReadByEmailAndPassword implementation of interface storage.AccountRepository
func (r *AccountRepository) ReadByEmailAndPassword(ctx context.Context, email string, password string) (*model.Account, error) {
	const SQL = `
		SELECT id, email, balance
		FROM accounts
		WHERE email = $1
		AND password = crypt($2, password)
`
	m := &model.Account{}

	err := r.db.QueryRowContext(ctx, SQL, email, password).Scan(&m.ID, &m.Email, &m.Balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// Balance implementation of interface storage.AccountRepository
func (r *AccountRepository) Balance(ctx context.Context, id uuid.UUID) (int64, error) {
	const SQL = `SELECT balance FROM accounts WHERE id=$1`

	var balance int64

	err := r.db.QueryRowContext(ctx, SQL, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.ErrNotFound
		}
		return 0, fmt.Errorf("select: %w", err)
	}

	return balance, nil
}
