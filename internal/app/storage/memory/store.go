// Package memory holds an in-memory storage implementation used by tests and
// local development. Semantics mirror the postgres implementation: appends for
// the same account are serialized by a per-account lock, the materialized
// balance moves in the same critical section as the append, and history is
// append-only.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"promarket/internal/app/apperr"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

var (
	_ storage.AccountRepository  = (*Store)(nil)
	_ storage.LedgerRepository   = (*Store)(nil)
	_ storage.ProposalRepository = (*Proposals)(nil)
)

type Store struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]*model.Account
	emails    map[string]uuid.UUID
	ledgers   map[uuid.UUID][]*model.Transaction
	keys      map[uuid.UUID]map[string]*model.Transaction
	locks     map[uuid.UUID]*sync.Mutex
	proposals map[uuid.UUID][]*model.Proposal
}

func NewStore() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]*model.Account),
		emails:    make(map[string]uuid.UUID),
		ledgers:   make(map[uuid.UUID][]*model.Transaction),
		keys:      make(map[uuid.UUID]map[string]*model.Transaction),
		locks:     make(map[uuid.UUID]*sync.Mutex),
		proposals: make(map[uuid.UUID][]*model.Proposal),
	}
}

// accountLock returns the serialization lock for one account. Operations on
// different accounts never contend.
func (s *Store) accountLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create implementation of interface storage.AccountRepository
func (s *Store) Create(_ context.Context, m *model.Account) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[m.Email]; ok {
		return nil, apperr.ErrConflict
	}

	m.ID = uuid.New()
	cp := *m
	s.accounts[m.ID] = &cp
	s.emails[m.Email] = m.ID

	return m, nil
}

// Read implementation of interface storage.AccountRepository
func (s *Store) Read(_ context.Context, id uuid.UUID) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.accounts[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// ReadByEmailAndPassword implementation of interface storage.AccountRepository
func (s *Store) ReadByEmailAndPassword(_ context.Context, email string, password string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	m := s.accounts[id]
	if m.Password != password {
		return nil, apperr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// Balance implementation of interface storage.AccountRepository
func (s *Store) Balance(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.accounts[id]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	return m.Balance, nil
}

// Append implementation of interface storage.LedgerRepository
//
// The account lock is held for the whole check-then-append unit; the global
// s.mu guards only map access, so appends on unrelated accounts do not
// contend with each other.
func (s *Store) Append(ctx context.Context, m *model.Transaction) (*model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.ErrStorageUnavailable
	}

	lock := s.accountLock(m.AccountID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	acc, ok := s.accounts[m.AccountID]
	var prev *model.Transaction
	var balance int64
	var last time.Time
	if ok {
		if m.IdempotencyKey != "" {
			prev = s.keys[m.AccountID][m.IdempotencyKey]
		}
		balance = acc.Balance
		if lg := s.ledgers[m.AccountID]; len(lg) > 0 {
			last = lg[len(lg)-1].CreatedAt
		}
	}
	s.mu.RUnlock()

	if !ok {
		return nil, apperr.ErrNotFound
	}

	if prev != nil {
		cp := *prev
		return &cp, apperr.ErrDuplicateKey
	}

	if m.Kind == model.KindDebit && balance < m.Amount {
		return nil, apperr.ErrInsufficientBalance
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	// keep per-account ordering strict even if the wall clock stalls
	if !last.IsZero() && !m.CreatedAt.After(last) {
		m.CreatedAt = last.Add(time.Nanosecond)
	}

	cp := *m
	s.mu.Lock()
	s.ledgers[m.AccountID] = append(s.ledgers[m.AccountID], &cp)
	if m.IdempotencyKey != "" {
		if s.keys[m.AccountID] == nil {
			s.keys[m.AccountID] = make(map[string]*model.Transaction)
		}
		s.keys[m.AccountID][m.IdempotencyKey] = &cp
	}
	acc.Balance += m.Signed()
	s.mu.Unlock()

	return m, nil
}

// ListByAccount implementation of interface storage.LedgerRepository
func (s *Store) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lg := s.ledgers[accountID]
	res := make([]*model.Transaction, 0, limit)
	for i := len(lg) - 1; i >= 0 && len(res) < limit; i-- {
		cp := *lg[i]
		res = append(res, &cp)
	}
	return res, nil
}

// SumByAccount implementation of interface storage.LedgerRepository
func (s *Store) SumByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, t := range s.ledgers[accountID] {
		sum += t.Signed()
	}
	return sum, nil
}

// FindByKey implementation of interface storage.LedgerRepository
func (s *Store) FindByKey(_ context.Context, accountID uuid.UUID, key string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prev, ok := s.keys[accountID][key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *prev
	return &cp, nil
}

// Proposals adapts a Store to storage.ProposalRepository.
type Proposals struct {
	store *Store
}

func NewProposals(s *Store) *Proposals {
	return &Proposals{store: s}
}

// Create implementation of interface storage.ProposalRepository
func (p *Proposals) Create(_ context.Context, m *model.Proposal) (*model.Proposal, error) {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.JobID == "" {
		return nil, apperr.ErrInvalidInput
	}

	for _, p := range s.proposals[m.AccountID] {
		if p.JobID == m.JobID {
			return nil, apperr.ErrConflict
		}
	}

	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	cp := *m
	s.proposals[m.AccountID] = append(s.proposals[m.AccountID], &cp)

	return m, nil
}

// AllByAccountID implementation of interface storage.ProposalRepository
func (p *Proposals) AllByAccountID(_ context.Context, accountID uuid.UUID) ([]*model.Proposal, error) {
	s := p.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	pp := s.proposals[accountID]
	res := make([]*model.Proposal, 0, len(pp))
	for i := len(pp) - 1; i >= 0; i-- {
		cp := *pp[i]
		res = append(res, &cp)
	}
	return res, nil
}
