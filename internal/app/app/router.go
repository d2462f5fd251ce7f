package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"promarket/internal/app/handler"
	mw "promarket/internal/app/middleware"
)

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(a.logger))

	auth := mw.Auth(a.session)

	ah := handler.NewAccountHandler(a.accounts, a.session)
	ch := handler.NewCreditsHandler(a.ledger)
	ph := handler.NewProposalHandler(a.guard, a.proposals, a.config.Ledger.ProposalCost)

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", ah.Register)
			r.Post("/login", ah.Login)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Use(auth)
			r.Get("/balance", ch.Statement)
			r.Post("/purchase", ch.Purchase)
		})

		r.Route("/proposals", func(r chi.Router) {
			r.Use(auth)
			r.Post("/", ph.Create)
			r.Get("/", ph.List)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth)
			r.Post("/correct", ch.Correct)
		})
	})

	return r
}
