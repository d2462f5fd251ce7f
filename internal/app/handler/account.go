package handler

import (
	"errors"
	"net/http"

	"promarket/internal/app/apperr"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/session"
	"promarket/internal/app/storage"
)

type AccountHandler struct {
	session  session.Creator
	accounts storage.AccountRepository
}

func NewAccountHandler(accounts storage.AccountRepository, sm session.Creator) *AccountHandler {
	return &AccountHandler{
		session:  sm,
		accounts: accounts,
	}
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.Get(r.Context(), "Handler.Account.Register")

	in := struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	m, err := h.accounts.Create(r.Context(), &model.Account{
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			log.Debug().Err(err).Send()
			WriteError(w, err, http.StatusConflict)
			return
		}
		log.Error().Err(err).Send()
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	h.issueToken(w, r, m)
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.Get(r.Context(), "Handler.Account.Login")

	in := struct {
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}{}

	if err := readBody(r, &in); err != nil {
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if !validateData(w, in) {
		return
	}

	m, err := h.accounts.ReadByEmailAndPassword(r.Context(), in.Email, in.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Send()
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	h.issueToken(w, r, m)
}

func (h *AccountHandler) issueToken(w http.ResponseWriter, r *http.Request, m *model.Account) {
	token, err := h.session.Create(r.Context(), m)
	if err != nil {
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	out := struct {
		Token string `json:"token"`
	}{token}

	w.Header().Add("Authorization", "Bearer "+token)

	WriteResponse(w, out, http.StatusOK)
}
