package handler

import (
	"context"
	"net/http"

	"promarket/internal/app/apperr"
	"promarket/internal/app/ledger"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

type ProposalHandler struct {
	guard     *ledger.Guard
	proposals storage.ProposalRepository
	cost      int64
}

func NewProposalHandler(guard *ledger.Guard, proposals storage.ProposalRepository, cost int64) *ProposalHandler {
	return &ProposalHandler{
		guard:     guard,
		proposals: proposals,
		cost:      cost,
	}
}

// Create submits a proposal through the consumption guard: credits are spent
// if and only if the proposal row is created. Clients must send an
// Idempotency-Key header; a retried request with the same key neither
// double-charges nor creates a second proposal.
func (h *ProposalHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Proposal.Create")

	m, err := ReadContextAccount(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		l.Debug().Msg("Missing Idempotency-Key header")
		WriteError(w, apperr.ErrInvalidInput, http.StatusBadRequest)
		return
	}

	in := struct {
		JobID       string `json:"job_id" validate:"required,max=64"`
		CoverLetter string `json:"cover_letter" validate:"max=5000"`
	}{}

	if err := readBody(r, &in); err != nil {
		l.Debug().Err(err).Msg("Body read failed")
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	res, err := h.guard.Consume(ctx, m.ID, h.cost, key, func(ctx context.Context) (interface{}, error) {
		return h.proposals.Create(ctx, &model.Proposal{
			AccountID:   m.ID,
			JobID:       in.JobID,
			CoverLetter: in.CoverLetter,
		})
	})
	if err != nil {
		writeLedgerError(w, l, err)
		return
	}

	if res.Replayed {
		l.Debug().Msg("Replayed submission")
		WriteResponse(w, struct {
			Replayed bool `json:"replayed"`
		}{true}, http.StatusOK)
		return
	}

	WriteResponse(w, res.Value, http.StatusCreated)
}

// List returns the account's proposals, most recent first.
func (h *ProposalHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Proposal.List")

	m, err := ReadContextAccount(ctx)
	if err != nil {
		l.Debug().Err(err).Msg("Unauthorized")
		WriteError(w, err, http.StatusUnauthorized)
		return
	}

	mm, err := h.proposals.AllByAccountID(ctx, m.ID)
	if err != nil {
		l.Error().Err(err).Send()
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	if len(mm) == 0 {
		WriteResponse(w, struct{}{}, http.StatusNoContent)
		return
	}

	WriteResponse(w, mm, http.StatusOK)
}
