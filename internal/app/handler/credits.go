package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"promarket/internal/app/apperr"
	"promarket/internal/app/ledger"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/pkg/billing"
)

type CreditsHandler struct {
	ledger *ledger.Service
}

func NewCreditsHandler(svc *ledger.Service) *CreditsHandler {
	return &CreditsHandler{
		ledger: svc,
	}
}

// Statement serves the balance read-query contract: current balance plus up
// to ten most recent transactions.
func (h *CreditsHandler) Statement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Credits.Statement")

	m, err := ReadContextAccount(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	out, err := h.ledger.GetStatement(ctx, m.ID)
	if err != nil {
		l.Error().Err(err).Send()
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	WriteResponse(w, out, http.StatusOK)
}

// Purchase is the purchase-confirmation trigger: a settled purchase becomes
// a CREDIT entry. The receipt number doubles as the idempotency key, so a
// replayed confirmation cannot double-credit.
func (h *CreditsHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Credits.Purchase")

	m, err := ReadContextAccount(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	in := struct {
		Receipt string `json:"receipt" validate:"required"`
		Amount  int64  `json:"amount" validate:"required,gt=0"`
	}{}

	if err := readBody(r, &in); err != nil {
		l.Debug().Err(err).Msg("Body read failed")
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	if !billing.ValidReceipt(in.Receipt) {
		l.Debug().Str("receipt", in.Receipt).Msg("Validation error")
		WriteError(w, apperr.ErrInvalidInput, http.StatusUnprocessableEntity)
		return
	}

	tr, err := h.ledger.CreditKeyed(ctx, m.ID, in.Amount,
		model.SourcePurchase, "purchase "+in.Receipt, "purchase:"+in.Receipt)
	if err != nil {
		writeLedgerError(w, l, err)
		return
	}

	WriteResponse(w, tr, http.StatusOK)
}

// Correct is the administrative reconciliation trigger.
func (h *CreditsHandler) Correct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Credits.Correct")

	if _, err := ReadContextAccount(ctx); err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	in := struct {
		AccountID   string `json:"account_id" validate:"required,uuid4"`
		Delta       int64  `json:"delta" validate:"required"`
		Description string `json:"description" validate:"required,max=500"`
	}{}

	if err := readBody(r, &in); err != nil {
		l.Debug().Err(err).Msg("Body read failed")
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	accountID, err := uuid.Parse(in.AccountID)
	if err != nil {
		WriteError(w, apperr.ErrInvalidInput, http.StatusBadRequest)
		return
	}

	tr, err := h.ledger.Correct(ctx, accountID, in.Delta, in.Description)
	if err != nil {
		writeLedgerError(w, l, err)
		return
	}

	WriteResponse(w, tr, http.StatusOK)
}

func writeLedgerError(w http.ResponseWriter, l logger.Logger, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidAmount), errors.Is(err, apperr.ErrInvalidInput):
		l.Debug().Err(err).Msg("Validation error")
		WriteError(w, err, http.StatusUnprocessableEntity)
	case errors.Is(err, apperr.ErrInsufficientBalance):
		l.Debug().Err(err).Msg("Insufficient balance")
		WriteError(w, err, http.StatusPaymentRequired)
	case errors.Is(err, apperr.ErrConflict):
		l.Debug().Err(err).Msg("Replay conflict")
		WriteError(w, err, http.StatusConflict)
	case errors.Is(err, apperr.ErrNotFound):
		l.Debug().Err(err).Msg("Account not found")
		WriteError(w, err, http.StatusNotFound)
	case errors.Is(err, apperr.ErrStorageUnavailable):
		l.Error().Err(err).Msg("Storage unavailable")
		WriteError(w, err, http.StatusServiceUnavailable)
	case errors.Is(err, apperr.ErrActionFailed):
		l.Debug().Err(err).Msg("Gated action failed")
		WriteError(w, err, http.StatusBadGateway)
	default:
		l.Error().Err(err).Msg("Internal error")
		WriteError(w, err, http.StatusInternalServerError)
	}
}
