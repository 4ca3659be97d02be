package service

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/password"
)

const operatorRole = "operator"

var (
	// ErrInvalidCredentials represents login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAuthDisabled is returned when no operator account is configured.
	ErrAuthDisabled = errors.New("auth: operator login not configured")
)

// AuthService checks the single configured operator account.
type AuthService struct {
	username  string
	hash      string
	hasher    password.Hasher
	tokenizer *TokenService
	logger    *zap.Logger
}

// NewAuthService builds AuthService. An empty username or hash disables login.
func NewAuthService(username, hash string, hasher password.Hasher, tokenizer *TokenService, logger *zap.Logger) *AuthService {
	return &AuthService{
		username:  strings.TrimSpace(username),
		hash:      strings.TrimSpace(hash),
		hasher:    hasher,
		tokenizer: tokenizer,
		logger:    logger,
	}
}

// Login authenticates the operator and produces a JWT.
func (s *AuthService) Login(username, pass string) (string, time.Time, error) {
	if s.username == "" || s.hash == "" {
		return "", time.Time{}, ErrAuthDisabled
	}
	if strings.TrimSpace(username) != s.username || pass == "" {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(s.hash, pass); err != nil {
		if errors.Is(err, password.ErrInvalidHash) {
			s.logger.Error("operator password hash is unusable", zap.Error(err))
		} else {
			s.logger.Info("operator login rejected", zap.String("username", username))
		}
		return "", time.Time{}, ErrInvalidCredentials
	}
	return s.tokenizer.GenerateToken(s.username, operatorRole)
}
