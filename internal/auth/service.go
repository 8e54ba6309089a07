package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/taller-erp/taller-erp/internal/shared"
)

// Tokens issues and resolves bearer tokens.
type Tokens interface {
	Issue(ctx context.Context, p Principal) (Session, error)
	Lookup(ctx context.Context, token string) (Principal, error)
	Revoke(ctx context.Context, token string) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens Tokens
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens Tokens, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.tokens.Issue(ctx, PrincipalFor(*user))
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("login", slog.Int64("user_id", user.ID))
	return sess, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Resolve returns the principal owning token.
func (s *Service) Resolve(ctx context.Context, token string) (Principal, error) {
	return s.tokens.Lookup(ctx, token)
}
