package session

import (
	"context"

	"github.com/pkg/errors"

	"github.com/golang-jwt/jwt"

	"promarket/internal/app/model"
)

var ErrInvalidToken = errors.New("invalid token")

type Creator interface {
	// Create a session for the account and return a signed token
	Create(ctx context.Context, m *model.Account) (string, error)
}

type Reader interface {
	// Read resolves a token back to its account
	Read(ctx context.Context, token string) (*model.Account, error)
}

type Manager interface {
	Creator
	Reader
}

type Claims struct {
	jwt.StandardClaims
}
