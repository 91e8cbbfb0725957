package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/calldesk/internal/store"
)

var (
	// ErrInvalidIdentity is returned when an identity doesn't meet constraints.
	ErrInvalidIdentity = errors.New("invalid identity")
)

const maxIdentityLength = 64

// Service issues and validates session cookies for the dev backend.
type Service struct {
	accounts       store.AccountStore
	jwtConfig      *JWTConfig
	initialBalance int64
}

// NewService creates a new session service. New accounts start with initialBalance.
func NewService(accounts store.AccountStore, jwtConfig *JWTConfig, initialBalance int64) *Service {
	return &Service{
		accounts:       accounts,
		jwtConfig:      jwtConfig,
		initialBalance: initialBalance,
	}
}

// CreateSession makes sure an account exists for identity and returns a session token.
func (s *Service) CreateSession(ctx context.Context, identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" || len(identity) > maxIdentityLength || strings.ContainsAny(identity, " \t\r\n") {
		return "", ErrInvalidIdentity
	}

	if _, err := s.accounts.EnsureAccount(ctx, identity, s.initialBalance); err != nil {
		return "", fmt.Errorf("ensure account: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, identity)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates a session token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// TTL returns how long issued sessions are valid.
func (s *Service) TTL() int {
	return int(s.jwtConfig.TTL.Seconds())
}
