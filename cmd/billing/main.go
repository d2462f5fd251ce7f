// A stub of the remote billing provider for local development. Serves random
// settlement statuses so the confirmer and the purchase flow can be exercised
// without the real provider.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"promarket/internal/app/logger"
	mw "promarket/internal/app/middleware"
	"promarket/pkg/billing"
)

func main() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		osCall := <-stop
		logger.Global().Info().Str("signal", fmt.Sprintf("%+v", osCall)).Msg("System call")
		cancel()
	}()

	l := logger.New(true, true)

	if err := runServer(ctx, "127.0.0.1:8090", l); err != nil {
		l.Fatal().Err(err).Msg("Server run failed")
	}
}

func runServer(ctx context.Context, listenAddr string, l logger.Logger) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(l))
	r.Get("/api/purchases/{receipt}", GetPurchase)
	r.Get("/api/purchases", ListSettled)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}

	go func() {
		l.Info().Str("listen_address", listenAddr).Msg("Listening incoming connections")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("")
		}
	}()

	l.Info().Msg("Server started")
	<-ctx.Done()
	l.Info().Msg("Server stopped")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.Info().Msg("Server exited properly")

	return nil
}

func GetPurchase(w http.ResponseWriter, r *http.Request) {
	receipt := chi.URLParam(r, "receipt")
	l := logger.Ctx(r.Context()).With().Str("receipt", receipt).Str("method", "GetPurchase").Logger()

	if !billing.ValidReceipt(receipt) {
		l.Debug().Msg("Invalid receipt")
		http.Error(w, "unknown receipt", http.StatusNotFound)
		return
	}

	statuses := []string{billing.StatusPending, billing.StatusSettled, billing.StatusVoided}
	out := &billing.GetPurchaseResponse{
		Receipt: receipt,
		Status:  statuses[rand.Intn(len(statuses))],
	}
	if out.Status == billing.StatusSettled {
		out.Credits = int64(rand.Intn(20) + 1)
	}

	writeJSON(w, out)
}

func ListSettled(w http.ResponseWriter, r *http.Request) {
	// the stub has no purchase backlog
	writeJSON(w, &billing.ListSettledResponse{Purchases: []billing.SettledPurchase{}})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(raw)
}
