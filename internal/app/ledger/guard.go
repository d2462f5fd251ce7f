package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"promarket/internal/app/apperr"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
)

// Action is a gated operation paired with a debit. It runs only after the
// debit has committed; if it fails, the guard appends a compensating refund.
type Action func(ctx context.Context) (interface{}, error)

// ConsumeResult is the outcome of a guarded consumption. Replayed marks a
// request deduplicated by idempotency key: the debit already stood and the
// action was not re-invoked, so Value is nil.
type ConsumeResult struct {
	Transaction *model.Transaction
	Value       interface{}
	Replayed    bool
}

type Guard struct {
	svc           *Service
	refundTimeout time.Duration
}

func (g *Guard) LoggerComponent() string {
	return "Ledger.Guard"
}

func NewGuard(svc *Service) *Guard {
	return &Guard{
		svc:           svc,
		refundTimeout: 10 * time.Second,
	}
}

// Consume debits amount from the account and then runs action. Credits are
// spent if and only if the action succeeds: the debit is committed first, and
// an action failure (including cancellation) is compensated with a refund
// credit of the same amount. Both entries stay in the ledger; rollback is a
// new entry, never a deletion.
//
// key is required. A retried call with the same key returns the previously
// committed debit without re-invoking action.
func (g *Guard) Consume(ctx context.Context, accountID uuid.UUID, amount int64, key string, action Action) (*ConsumeResult, error) {
	l := logger.Get(ctx, g).With().
		Str("account_id", accountID.String()).
		Str("key", key).
		Int64("amount", amount).
		Logger()

	if key == "" {
		return nil, apperr.ErrInvalidInput
	}

	m, err := g.svc.Debit(ctx, accountID, amount, model.SourceConsumption, "credit consumption", key)
	if errors.Is(err, apperr.ErrDuplicateKey) {
		if m.Amount != amount {
			l.Debug().Int64("recorded_amount", m.Amount).Msg("Replay with different amount")
			return nil, apperr.ErrConflict
		}
		l.Debug().Str("transaction_id", m.ID.String()).Msg("Consume replay, action not re-invoked")
		return &ConsumeResult{Transaction: m, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	v, actionErr := action(ctx)
	if actionErr == nil {
		return &ConsumeResult{Transaction: m, Value: v}, nil
	}

	l.Debug().Err(actionErr).Msg("Action failed, refunding")

	// The caller's context may already be cancelled; the compensation must
	// still be recorded, so it runs on its own deadline.
	rctx, cancel := context.WithTimeout(context.Background(), g.refundTimeout)
	defer cancel()
	rctx = l.WithContext(rctx)

	_, refundErr := g.svc.CreditKeyed(rctx, accountID, amount,
		model.SourceRefund, "refund: "+key, key+":refund")
	if refundErr != nil {
		l.Error().Err(refundErr).Msg("Compensating credit failed")
		return nil, fmt.Errorf("compensation pending after action failure (%v): %w", actionErr, refundErr)
	}

	return nil, fmt.Errorf("%v: %w", actionErr, apperr.ErrActionFailed)
}
