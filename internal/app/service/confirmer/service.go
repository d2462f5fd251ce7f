// Package confirmer polls the billing provider for settled credit purchases
// and records them in the ledger. Credits are keyed by receipt, so the poller
// can crash, restart, or double-fetch without double-crediting.
package confirmer

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"promarket/internal/app/apperr"
	"promarket/internal/app/ledger"
	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/pkg/billing"
)

type Job func() error

type Service struct {
	mu      sync.Mutex
	logger  logger.Logger
	ledger  *ledger.Service
	billing *billing.Service

	jobs   chan Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	pollInterval time.Duration
	since        time.Time
}

func New(svc *ledger.Service, bc *billing.Service, pollInterval time.Duration) (*Service, error) {
	s := &Service{
		logger:       logger.Global().WithComponent("Confirmer.Service"),
		ledger:       svc,
		billing:      bc,
		pollInterval: pollInterval,
		jobs:         make(chan Job),
		stopCh:       make(chan struct{}),
		since:        time.Now().Add(-24 * time.Hour),
	}
	s.Start(runtime.GOMAXPROCS(0))

	return s, nil
}

func (s *Service) Start(numWorkers int) {
	const retryDelay = time.Second

	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			for {
				select {
				case <-s.stopCh:
					return
				case job := <-s.jobs:
					id := xid.New()
					l := s.logger.With().Int("worker_id", workerID).Str("job_id", id.String()).Logger()
					l.Debug().Msg("Running job")
					if err := job(); err != nil {
						l.Error().Err(err).Msg("Job failed")
						go func() {
							time.Sleep(retryDelay)
							select {
							case s.jobs <- job:
							case <-s.stopCh:
							}
						}()
						continue
					}
					l.Debug().Msg("Job done")
				}
			}
		}(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-t.C:
				select {
				case s.jobs <- s.confirmSettled():
				case <-s.stopCh:
					return
				}
			}
		}
	}()
}

func (s *Service) Stop() {
	s.logger.Debug().Msg("Service shutdown")
	close(s.stopCh)
	s.wg.Wait()
}

// Run schedules a job on the worker pool.
func (s *Service) Run(job Job) {
	select {
	case s.jobs <- job:
	case <-s.stopCh:
	}
}

// confirmSettled fetches purchases settled since the last poll and credits
// each one. The receipt-derived idempotency key makes replays harmless, so
// the poll window may overlap.
func (s *Service) confirmSettled() Job {
	const timeout = 30 * time.Second

	return func() error {
		l := s.logger.WithComponent("Confirmer.Job.ConfirmSettled")

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ctx = l.WithContext(ctx)

		s.mu.Lock()
		since := s.since
		s.mu.Unlock()

		started := time.Now()

		out := &billing.ListSettledResponse{}
		if err := s.billing.ListSettled(ctx, since, out); err != nil {
			l.Error().Err(err).Msg("Settled purchases fetch failed")
			return err
		}

		for _, p := range out.Purchases {
			accountID, err := uuid.Parse(p.AccountID)
			if err != nil {
				l.Error().Str("account_id", p.AccountID).Msg("Malformed account id, skipping")
				continue
			}

			_, err = s.ledger.CreditKeyed(ctx, accountID, p.Credits,
				model.SourcePurchase, "purchase "+p.Receipt, "purchase:"+p.Receipt)
			if err != nil {
				// an amount mismatch against the recorded credit will never
				// resolve itself, so it must not fail the job into a retry
				if errors.Is(err, apperr.ErrConflict) {
					l.Error().Str("receipt", p.Receipt).Msg("Settled amount differs from the recorded credit, skipping")
					continue
				}
				l.Error().Err(err).Str("receipt", p.Receipt).Msg("Credit failed")
				return err
			}
		}

		s.mu.Lock()
		s.since = started
		s.mu.Unlock()

		l.Debug().Int("purchases", len(out.Purchases)).Dur("duration", time.Since(started)).Msg("Done confirming")

		return nil
	}
}
