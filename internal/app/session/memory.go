package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

// session.Manager interface implementation
var _ Manager = (*Memory)(nil)

type (
	Memory struct {
		mu            sync.RWMutex
		issuer        string
		secretKey     []byte
		tokenLifetime time.Duration
		accounts      storage.AccountRepository
		db            MemoryDB
	}
	MemoryDB map[string]Session
)

func (svc *Memory) LoggerComponent() string {
	return "Session.Memory"
}

type MemoryOption func(*Memory)

func WithTokenLifetime(d time.Duration) MemoryOption {
	return func(m *Memory) {
		m.tokenLifetime = d
	}
}

func NewMemory(secretKey string, accounts storage.AccountRepository, opts ...MemoryOption) *Memory {
	s := &Memory{
		secretKey:     []byte(secretKey),
		accounts:      accounts,
		tokenLifetime: time.Hour,
		db:            make(MemoryDB),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type Session struct {
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID uuid.UUID `json:"account_id"`
}

// Create method of session.Creator implementation
func (svc *Memory) Create(ctx context.Context, m *model.Account) (string, error) {
	l := logger.Get(ctx, svc)
	l.Debug().Str("account_id", m.ID.String()).Msg("Create")

	id := uuid.New().String()

	now := time.Now()
	exp := now.Add(svc.tokenLifetime)

	strToken, err := signToken(svc.secretKey, svc.issuer, id, now, exp)
	if err != nil {
		l.Error().Err(err).Send()
		return "", fmt.Errorf("jwt encode: %w", err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.db[id] = Session{
		AccountID: m.ID,
		StartedAt: now,
		ExpiresAt: exp,
	}

	return strToken, nil
}

// Read method of session.Reader implementation
func (svc *Memory) Read(ctx context.Context, tokenString string) (*model.Account, error) {
	l := logger.Get(ctx, svc)

	c, err := parseToken(svc.secretKey, tokenString)
	if err != nil {
		l.Debug().Err(err).Msg("Token parse failed")
		return nil, ErrInvalidToken
	}

	svc.mu.Lock()
	s, ok := svc.db[c.StandardClaims.Id]
	if ok && s.ExpiresAt.Before(time.Now()) {
		delete(svc.db, c.StandardClaims.Id)
		ok = false
	}
	svc.mu.Unlock()

	if !ok {
		l.Debug().Msg("Session not found or expired")
		return nil, ErrInvalidToken
	}

	m, err := svc.accounts.Read(ctx, s.AccountID)
	if err != nil {
		l.Debug().Err(err).Send()
		return nil, ErrInvalidToken
	}

	return m, nil
}

func signToken(secret []byte, issuer, id string, now, exp time.Time) (string, error) {
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        id,
			NotBefore: now.Unix(),
			ExpiresAt: exp.Unix(),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString(secret)
}

func parseToken(secret []byte, tokenString string) (*Claims, error) {
	c := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, c, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return c, nil
}
