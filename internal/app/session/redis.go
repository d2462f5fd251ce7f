package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"promarket/internal/app/logger"
	"promarket/internal/app/model"
	"promarket/internal/app/storage"
)

// session.Manager interface implementation
var _ Manager = (*Redis)(nil)

// Redis keeps sessions in redis with a TTL so tokens survive process
// restarts and are shared between instances.
type Redis struct {
	issuer        string
	secretKey     []byte
	tokenLifetime time.Duration
	accounts      storage.AccountRepository
	client        *redis.Client
}

func (svc *Redis) LoggerComponent() string {
	return "Session.Redis"
}

func NewRedis(secretKey string, accounts storage.AccountRepository, client *redis.Client) *Redis {
	return &Redis{
		secretKey:     []byte(secretKey),
		accounts:      accounts,
		client:        client,
		tokenLifetime: time.Hour,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

// Create method of session.Creator implementation
func (svc *Redis) Create(ctx context.Context, m *model.Account) (string, error) {
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

	raw, err := json.Marshal(Session{
		AccountID: m.ID,
		StartedAt: now,
		ExpiresAt: exp,
	})
	if err != nil {
		return "", fmt.Errorf("json encode: %w", err)
	}

	if err := svc.client.Set(ctx, sessionKey(id), raw, svc.tokenLifetime).Err(); err != nil {
		l.Error().Err(err).Msg("Session store failed")
		return "", fmt.Errorf("redis set: %w", err)
	}

	return strToken, nil
}

// Read method of session.Reader implementation
func (svc *Redis) Read(ctx context.Context, tokenString string) (*model.Account, error) {
	l := logger.Get(ctx, svc)

	c, err := parseToken(svc.secretKey, tokenString)
	if err != nil {
		l.Debug().Err(err).Msg("Token parse failed")
		return nil, ErrInvalidToken
	}

	raw, err := svc.client.Get(ctx, sessionKey(c.StandardClaims.Id)).Bytes()
	if err != nil {
		l.Debug().Err(err).Msg("Session not found")
		return nil, ErrInvalidToken
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ErrInvalidToken
	}

	m, err := svc.accounts.Read(ctx, s.AccountID)
	if err != nil {
		l.Debug().Err(err).Send()
		return nil, ErrInvalidToken
	}

	return m, nil
}
