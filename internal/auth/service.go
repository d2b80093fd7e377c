package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/projectchat-server/internal/store"
)

var (
	// ErrInvalidToken is returned when a token is missing, malformed or expired.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnknownUser is returned when a valid token names a user that does not exist.
	ErrUnknownUser = errors.New("unknown user")
)

// Service resolves bearer tokens to users.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Authenticate validates the token and loads the user it names.
func (s *Service) Authenticate(ctx context.Context, token string) (*store.User, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := ValidateToken(s.jwtConfig, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// IssueToken signs a token for an existing user.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, userID)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
