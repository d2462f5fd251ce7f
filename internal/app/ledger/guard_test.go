package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promarket/internal/app/apperr"
	"promarket/internal/app/model"
)

func TestGuard_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("spends credits when the action succeeds", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := svc.Credit(ctx, acc.ID, 5, model.SourcePurchase, "buy 5")
		require.NoError(t, err)

		invoked := 0
		res, err := guard.Consume(ctx, acc.ID, 3, "req-1", func(ctx context.Context) (interface{}, error) {
			invoked++
			return "proposal-42", nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, invoked)
		assert.Equal(t, "proposal-42", res.Value)
		assert.False(t, res.Replayed)

		balance, err := svc.Balance(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), balance)
	})

	t.Run("requires an idempotency key", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := guard.Consume(ctx, acc.ID, 1, "", func(ctx context.Context) (interface{}, error) {
			t.Fatal("action must not run")
			return nil, nil
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	})

	t.Run("does not invoke the action without balance", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := guard.Consume(ctx, acc.ID, 3, "req-1", func(ctx context.Context) (interface{}, error) {
			t.Fatal("action must not run")
			return nil, nil
		})
		assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	})

	t.Run("refunds when the action fails", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := svc.Credit(ctx, acc.ID, 5, model.SourcePurchase, "buy 5")
		require.NoError(t, err)

		actionErr := errors.New("proposal rejected")
		_, err = guard.Consume(ctx, acc.ID, 3, "req-2", func(ctx context.Context) (interface{}, error) {
			return nil, actionErr
		})
		assert.ErrorIs(t, err, apperr.ErrActionFailed)

		// the ledger keeps both the debit and its refund
		recent, err := svc.Recent(ctx, acc.ID, 10)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, model.SourceRefund, recent[0].Source)
		assert.Equal(t, model.KindCredit, recent[0].Kind)
		assert.Equal(t, int64(3), recent[0].Amount)
		assert.Equal(t, model.KindDebit, recent[1].Kind)

		balance, err := svc.Balance(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance)
		assert.NoError(t, svc.Audit(ctx, acc.ID))
	})

	t.Run("refund is recorded even if the caller context is cancelled", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := svc.Credit(ctx, acc.ID, 5, model.SourcePurchase, "buy 5")
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		_, err = guard.Consume(cctx, acc.ID, 3, "req-3", func(ctx context.Context) (interface{}, error) {
			cancel()
			return nil, ctx.Err()
		})
		assert.ErrorIs(t, err, apperr.ErrActionFailed)

		balance, err := svc.Balance(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), balance)
	})

	t.Run("retried key neither re-charges nor re-invokes the action", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := svc.Credit(ctx, acc.ID, 5, model.SourcePurchase, "buy 5")
		require.NoError(t, err)

		invoked := 0
		action := func(ctx context.Context) (interface{}, error) {
			invoked++
			return "ok", nil
		}

		first, err := guard.Consume(ctx, acc.ID, 3, "req-4", action)
		require.NoError(t, err)

		second, err := guard.Consume(ctx, acc.ID, 3, "req-4", action)
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, 1, invoked)

		recent, err := svc.Recent(ctx, acc.ID, 10)
		require.NoError(t, err)
		assert.Len(t, recent, 2) // one credit, one debit

		balance, err := svc.Balance(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), balance)
	})

	t.Run("replay with a different amount is a conflict", func(t *testing.T) {
		svc, acc := newTestService(t)
		guard := NewGuard(svc)

		_, err := svc.Credit(ctx, acc.ID, 10, model.SourcePurchase, "buy 10")
		require.NoError(t, err)

		_, err = guard.Consume(ctx, acc.ID, 3, "req-5", func(ctx context.Context) (interface{}, error) {
			return nil, nil
		})
		require.NoError(t, err)

		_, err = guard.Consume(ctx, acc.ID, 4, "req-5", func(ctx context.Context) (interface{}, error) {
			t.Fatal("action must not run")
			return nil, nil
		})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})
}

// The end-to-end walk: buy 5, spend 3, retry the spend, fail a spend with
// refund, then overdraft.
func TestGuard_ConsumeScenario(t *testing.T) {
	ctx := context.Background()
	svc, acc := newTestService(t)
	guard := NewGuard(svc)

	_, err := svc.Credit(ctx, acc.ID, 5, model.SourcePurchase, "buy 5")
	require.NoError(t, err)
	assertBalance(t, svc, acc.ID, 5)

	ok := func(ctx context.Context) (interface{}, error) { return "done", nil }
	fail := func(ctx context.Context) (interface{}, error) { return nil, errors.New("boom") }

	_, err = guard.Consume(ctx, acc.ID, 3, "req-1", ok)
	require.NoError(t, err)
	assertBalance(t, svc, acc.ID, 2)

	res, err := guard.Consume(ctx, acc.ID, 3, "req-1", ok)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assertBalance(t, svc, acc.ID, 2)

	_, err = guard.Consume(ctx, acc.ID, 2, "req-2", fail)
	assert.ErrorIs(t, err, apperr.ErrActionFailed)
	assertBalance(t, svc, acc.ID, 2)

	_, err = svc.Debit(ctx, acc.ID, 10, model.SourceConsumption, "overdraft", "")
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assertBalance(t, svc, acc.ID, 2)

	assert.NoError(t, svc.Audit(ctx, acc.ID))
}

func assertBalance(t *testing.T, svc *Service, accountID uuid.UUID, want int64) {
	t.Helper()

	balance, err := svc.Balance(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, want, balance)
}
