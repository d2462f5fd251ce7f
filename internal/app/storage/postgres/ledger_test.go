package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promarket/internal/app/apperr"
	"promarket/internal/app/model"
)

func TestLedgerRepository_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("credit commits insert and balance update together", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo, err := NewLedgerRepository(db)
		require.NoError(t, err)

		accountID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts WHERE id=\\$1 FOR UPDATE").
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2))
		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), accountID, int64(5), "CREDIT", "purchase", "buy 5", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE accounts SET balance=balance\\+\\$1 WHERE id=\\$2").
			WithArgs(int64(5), accountID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		m, err := repo.Append(ctx, &model.Transaction{
			AccountID:   accountID,
			Amount:      5,
			Kind:        model.KindCredit,
			Source:      model.SourcePurchase,
			Description: "buy 5",
		})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, m.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit below balance appends nothing", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo, err := NewLedgerRepository(db)
		require.NoError(t, err)

		accountID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts WHERE id=\\$1 FOR UPDATE").
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2))
		mock.ExpectRollback()

		_, err = repo.Append(ctx, &model.Transaction{
			AccountID: accountID,
			Amount:    10,
			Kind:      model.KindDebit,
			Source:    model.SourceConsumption,
		})
		assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replayed idempotency key returns the committed row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo, err := NewLedgerRepository(db)
		require.NoError(t, err)

		accountID := uuid.New()
		prevID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts WHERE id=\\$1 FOR UPDATE").
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2))
		mock.ExpectQuery("WHERE account_id=\\$1 AND idempotency_key=\\$2").
			WithArgs(accountID, "req-1").
			WillReturnRows(sqlmock.
				NewRows([]string{"id", "account_id", "amount", "kind", "source", "description", "idempotency_key", "created_at"}).
				AddRow(prevID.String(), accountID.String(), int64(3), "DEBIT", "consumption", "spend", "req-1", time.Now()))
		mock.ExpectRollback()

		m, err := repo.Append(ctx, &model.Transaction{
			AccountID:      accountID,
			Amount:         3,
			Kind:           model.KindDebit,
			Source:         model.SourceConsumption,
			IdempotencyKey: "req-1",
		})
		assert.ErrorIs(t, err, apperr.ErrDuplicateKey)
		require.NotNil(t, m)
		assert.Equal(t, prevID, m.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo, err := NewLedgerRepository(db)
		require.NoError(t, err)

		accountID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT balance FROM accounts WHERE id=\\$1 FOR UPDATE").
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}))
		mock.ExpectRollback()

		_, err = repo.Append(ctx, &model.Transaction{
			AccountID: accountID,
			Amount:    1,
			Kind:      model.KindCredit,
			Source:    model.SourceBonus,
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerRepository_SumByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewLedgerRepository(db)
	require.NoError(t, err)

	accountID := uuid.New()

	mock.ExpectQuery("SELECT coalesce\\(sum\\(CASE WHEN kind=\\$1 THEN amount ELSE -amount END\\), 0\\)").
		WithArgs("CREDIT", accountID).
		WillReturnRows(sqlmock.NewRows([]string{"b"}).AddRow(7))

	sum, err := repo.SumByAccount(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), sum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepository_ListByAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewLedgerRepository(db)
	require.NoError(t, err)

	accountID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("ORDER BY seq DESC").
		WithArgs(accountID, 10).
		WillReturnRows(sqlmock.
			NewRows([]string{"id", "account_id", "amount", "kind", "source", "description", "idempotency_key", "created_at"}).
			AddRow(uuid.New().String(), accountID.String(), int64(3), "DEBIT", "consumption", "spend", "req-1", now).
			AddRow(uuid.New().String(), accountID.String(), int64(5), "CREDIT", "purchase", "buy 5", "", now))

	mm, err := repo.ListByAccount(context.Background(), accountID, 10)
	require.NoError(t, err)
	require.Len(t, mm, 2)
	assert.Equal(t, model.KindDebit, mm[0].Kind)
	assert.Equal(t, int64(5), mm[1].Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
