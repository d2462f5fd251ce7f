package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promarket/internal/app/apperr"
	"promarket/internal/app/model"
)

func TestStore_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown account", func(t *testing.T) {
		s := NewStore()

		_, err := s.Append(ctx, &model.Transaction{
			AccountID: uuid.New(),
			Amount:    1,
			Kind:      model.KindCredit,
			Source:    model.SourceBonus,
		})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := NewStore()
		acc, err := s.Create(ctx, &model.Account{Email: "a@example.com", Password: "secret-password"})
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err = s.Append(cctx, &model.Transaction{
			AccountID: acc.ID,
			Amount:    1,
			Kind:      model.KindCredit,
			Source:    model.SourceBonus,
		})
		assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	})

	t.Run("history stays strictly ordered", func(t *testing.T) {
		s := NewStore()
		acc, err := s.Create(ctx, &model.Account{Email: "a@example.com", Password: "secret-password"})
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			_, err := s.Append(ctx, &model.Transaction{
				AccountID: acc.ID,
				Amount:    1,
				Kind:      model.KindCredit,
				Source:    model.SourceBonus,
			})
			require.NoError(t, err)
		}

		mm, err := s.ListByAccount(ctx, acc.ID, 50)
		require.NoError(t, err)
		require.Len(t, mm, 50)
		for i := 1; i < len(mm); i++ {
			assert.True(t, mm[i].CreatedAt.Before(mm[i-1].CreatedAt),
				"history must be strictly ordered, most recent first")
		}
	})
}

// Appends on different accounts run independently; each account's balance and
// history must still agree afterwards.
func TestStore_ConcurrentAccounts(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	const (
		accounts = 8
		appends  = 25
	)

	ids := make([]uuid.UUID, 0, accounts)
	for i := 0; i < accounts; i++ {
		acc, err := s.Create(ctx, &model.Account{
			Email:    fmt.Sprintf("pro%d@example.com", i),
			Password: "secret-password",
		})
		require.NoError(t, err)
		ids = append(ids, acc.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			for i := 0; i < appends; i++ {
				_, err := s.Append(ctx, &model.Transaction{
					AccountID: id,
					Amount:    2,
					Kind:      model.KindCredit,
					Source:    model.SourceBonus,
				})
				assert.NoError(t, err)
				_, err = s.Append(ctx, &model.Transaction{
					AccountID: id,
					Amount:    1,
					Kind:      model.KindDebit,
					Source:    model.SourceConsumption,
				})
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		balance, err := s.Balance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(appends), balance)

		sum, err := s.SumByAccount(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, balance, sum)
	}
}
