package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"promarket/internal/app/apperr"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

// storage.LedgerRepository interface implementation
var _ storage.LedgerRepository = (*LedgerRepository)(nil)

const defaultAppendTimeout = 5 * time.Second

type LedgerRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func (r *LedgerRepository) LoggerComponent() string {
	return "LedgerRepository"
}

func NewLedgerRepository(db *sql.DB, opts ...LedgerOption) (*LedgerRepository, error) {
	r := &LedgerRepository{
		db:      db,
		timeout: defaultAppendTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

type LedgerOption func(*LedgerRepository)

// WithAppendTimeout bounds the atomic append unit. A deadline surfaces as
// apperr.ErrStorageUnavailable and leaves no partial transaction visible.
func WithAppendTimeout(d time.Duration) LedgerOption {
	return func(r *LedgerRepository) {
		r.timeout = d
	}
}

// Append implementation of interface storage.LedgerRepository.
//
// The account row lock serializes concurrent appends for the same account, so
// the balance check and the insert are indivisible. The materialized
// accounts.balance is updated inside the same transaction and never diverges
// from the ledger.
func (r *LedgerRepository) Append(ctx context.Context, m *model.Transaction) (*model.Transaction, error) {
	l := logger.Ctx(ctx).With().
		Str("method", "Append").
		Str("account_id", m.AccountID.String()).
		Str("kind", string(m.Kind)).
		Int64("amount", m.Amount).
		Logger()
	l.Debug().Msg("Appending transaction")

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx = l.WithContext(ctx)

	m.ID = uuid.New()
	m.CreatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		l.Error().Err(err).Msg("DB transaction begin")
		return nil, wrapStorageErr(err)
	}

	var balance int64
	const sqlLock = `SELECT balance FROM accounts WHERE id=$1 FOR UPDATE`
	if err := tx.QueryRowContext(ctx, sqlLock, m.AccountID).Scan(&balance); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		l.Error().Err(err).Msg("Account lock failed")
		return nil, wrapStorageErr(err)
	}

	if m.IdempotencyKey != "" {
		prev, err := r.txFindByKey(ctx, tx, m.AccountID, m.IdempotencyKey)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			_ = tx.Rollback()
			return nil, wrapStorageErr(err)
		}
		if prev != nil {
			_ = tx.Rollback()
			l.Debug().Str("transaction_id", prev.ID.String()).Msg("Idempotent replay")
			return prev, apperr.ErrDuplicateKey
		}
	}

	if m.Kind == model.KindDebit && balance < m.Amount {
		_ = tx.Rollback()
		l.Debug().Int64("balance", balance).Msg("Insufficient balance")
		return nil, apperr.ErrInsufficientBalance
	}

	const sqlInsert = `
		INSERT INTO transactions (id, account_id, amount, kind, source, description, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err = tx.ExecContext(ctx, sqlInsert,
		m.ID, m.AccountID, m.Amount, m.Kind, m.Source, m.Description, nullableKey(m.IdempotencyKey), m.CreatedAt)
	if err != nil {
		_ = tx.Rollback()

		if pgErr, ok := err.(*pg.Error); ok && pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
			prev, ferr := r.FindByKey(ctx, m.AccountID, m.IdempotencyKey)
			if ferr != nil {
				return nil, apperr.ErrConflict
			}
			return prev, apperr.ErrDuplicateKey
		}

		l.Error().Err(err).Msg("TX insert failed")
		return nil, wrapStorageErr(err)
	}

	const sqlUpdateBalance = `UPDATE accounts SET balance=balance+$1 WHERE id=$2`
	if _, err := tx.ExecContext(ctx, sqlUpdateBalance, m.Signed(), m.AccountID); err != nil {
		_ = tx.Rollback()
		l.Error().Err(err).Msg("Balance update failed")
		return nil, wrapStorageErr(err)
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Msg("TX commit failed")
		return nil, wrapStorageErr(err)
	}

	dur := time.Since(m.CreatedAt)
	l.Debug().Dur("duration", dur).Msg("Done appending transaction")

	return m, nil
}

// ListByAccount implementation of interface storage.LedgerRepository.
//
// Ordered by the insert sequence, not created_at: the app clock can hand out
// equal timestamps, the sequence cannot.
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*model.Transaction, error) {
	l := logger.Ctx(ctx).With().Str("method", "ListByAccount").Logger()

	const SQL = `
		SELECT id, account_id, amount, kind, source, description, coalesce(idempotency_key, ''), created_at
		FROM transactions
		WHERE account_id=$1
		ORDER BY seq DESC
		LIMIT $2
`
	res := make([]*model.Transaction, 0, limit)

	rows, err := r.db.QueryContext(ctx, SQL, accountID, limit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, nil
		}
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		m := &model.Transaction{}
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Amount, &m.Kind, &m.Source, &m.Description, &m.IdempotencyKey, &m.CreatedAt); err != nil {
			l.Debug().Err(err).Send()
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return res, nil
}

// SumByAccount implementation of interface storage.LedgerRepository
func (r *LedgerRepository) SumByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	const SQL = `
		SELECT coalesce(sum(CASE WHEN kind=$1 THEN amount ELSE -amount END), 0) AS b
		FROM transactions
		WHERE account_id=$2
`
	var sum int64

	err := r.db.QueryRowContext(ctx, SQL, model.KindCredit, accountID).Scan(&sum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select: %w", err)
	}

	return sum, nil
}

// FindByKey implementation of interface storage.LedgerRepository
func (r *LedgerRepository) FindByKey(ctx context.Context, accountID uuid.UUID, key string) (*model.Transaction, error) {
	return r.findByKey(ctx, r.db, accountID, key)
}

func (r *LedgerRepository) txFindByKey(ctx context.Context, tx *sql.Tx, accountID uuid.UUID, key string) (*model.Transaction, error) {
	return r.findByKey(ctx, tx, accountID, key)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (r *LedgerRepository) findByKey(ctx context.Context, q rowQuerier, accountID uuid.UUID, key string) (*model.Transaction, error) {
	const SQL = `
		SELECT id, account_id, amount, kind, source, description, coalesce(idempotency_key, ''), created_at
		FROM transactions
		WHERE account_id=$1 AND idempotency_key=$2
`
	m := &model.Transaction{}

	err := q.QueryRowContext(ctx, SQL, accountID, key).
		Scan(&m.ID, &m.AccountID, &m.Amount, &m.Kind, &m.Source, &m.Description, &m.IdempotencyKey, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// nullableKey keeps keyless transactions out of the unique index.
func nullableKey(key string) sql.NullString {
	return sql.NullString{String: key, Valid: key != ""}
}

func wrapStorageErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.ErrStorageUnavailable
	}
	return err
}
