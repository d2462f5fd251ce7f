package app

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/go-redis/redis/v8"

	"promarket/internal/app/config"
	"promarket/internal/app/ledger"
	"promarket/internal/app/logger"
	"promarket/internal/app/service/confirmer"
	"promarket/internal/app/session"
	"promarket/internal/app/storage"
	"promarket/internal/app/storage/postgres"
	"promarket/pkg/billing"
)

type App struct {
	config    config.Config
	logger    logger.Logger
	billing   *billing.Service
	confirmer *confirmer.Service
	accounts  storage.AccountRepository
	proposals storage.ProposalRepository
	ledger    *ledger.Service
	guard     *ledger.Guard
	session   session.Manager
	stopCh    chan struct{}
}

func New(cfg config.Config, log logger.Logger, e embed.FS) (*App, error) {
	bs, err := billing.NewService(cfg.Billing.RemoteURL, billing.WithLogger(log.Logger))
	if err != nil {
		return nil, fmt.Errorf("billing service init: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := applyMigrations(e, db); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	accounts, err := postgres.NewAccountRepository(db)
	if err != nil {
		return nil, fmt.Errorf("account repository init: %w", err)
	}

	ledgerRepo, err := postgres.NewLedgerRepository(db, postgres.WithAppendTimeout(cfg.Ledger.AppendTimeout))
	if err != nil {
		return nil, fmt.Errorf("ledger repository init: %w", err)
	}

	proposals, err := postgres.NewProposalRepository(db)
	if err != nil {
		return nil, fmt.Errorf("proposal repository init: %w", err)
	}

	svc := ledger.NewService(ledgerRepo, accounts)

	cs, err := confirmer.New(svc, bs, cfg.Billing.PollInterval)
	if err != nil {
		return nil, fmt.Errorf("confirmer init: %w", err)
	}

	a := &App{
		config:    cfg,
		logger:    log,
		stopCh:    make(chan struct{}),
		accounts:  accounts,
		proposals: proposals,
		ledger:    svc,
		guard:     ledger.NewGuard(svc),
		session:   newSessionManager(cfg, accounts),
		billing:   bs,
		confirmer: cs,
	}

	go func() {
		<-a.stopCh
		a.logger.Info().Msg("Shutting down application")
		a.confirmer.Stop()
	}()

	return a, nil
}

func newSessionManager(cfg config.Config, accounts storage.AccountRepository) session.Manager {
	if cfg.SessionStore == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return session.NewRedis(cfg.SecretKey, accounts, client)
	}

	return session.NewMemory(cfg.SecretKey, accounts)
}

func (a *App) Stop() {
	close(a.stopCh)
}
