package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kasirku/kasir/internal/shared"
	"github.com/kasirku/kasir/internal/users"
)

// UserFinder loads accounts for login and verification.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
	Get(ctx context.Context, id int64) (users.User, error)
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      users.User
}

// Service wraps authentication business rules.
type Service struct {
	users       UserFinder
	tokens      *TokenManager
	revocations *RevocationStore
	logger      *slog.Logger
}

// NewService constructs a new Service.
func NewService(finder UserFinder, tokens *TokenManager, revocations *RevocationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: finder, tokens: tokens, revocations: revocations, logger: logger}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (users.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(shared.Identity{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("login", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)))
	return Session{Token: token, ExpiresAt: exp, User: user}, nil
}

// Current reloads the account behind an identity. Deleted accounts are
// reported as an invalid token.
func (s *Service) Current(ctx context.Context, id shared.Identity) (users.User, error) {
	user, err := s.users.Get(ctx, id.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		return users.User{}, ErrInvalidToken
	}
	return user, err
}

// Logout revokes the caller's token.
func (s *Service) Logout(ctx context.Context, id shared.Identity) error {
	return s.revocations.Revoke(ctx, id.TokenID, id.ExpiresAt)
}
