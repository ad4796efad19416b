package users

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	Update(ctx context.Context, id int64, p Patch) (User, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	logger   *slog.Logger
	hashCost int
}

// Option customises Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService builds Service instance. audit may be nil.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, audit: audit, logger: logger, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// FindByUsername looks a user up for login.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.FindByUsername(ctx, strings.TrimSpace(username))
}

// Create registers a staff account.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := httpx.Validate(in); err != nil {
		return User{}, err
	}
	role, ok := shared.ParseRole(in.Role)
	if !ok {
		return User{}, ErrInvalidRole
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.Create(ctx, User{Username: in.Username, Email: in.Email, PasswordHash: hash, Role: role})
	if err != nil {
		return User{}, err
	}
	s.record(ctx, shared.AuditUserCreated, user.ID, map[string]any{"username": user.Username, "role": user.Role})
	return user, nil
}

// Update changes the supplied fields of a user.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (User, error) {
	if err := httpx.Validate(in); err != nil {
		return User{}, err
	}
	p := Patch{Username: trimmed(in.Username), Email: trimmed(in.Email)}
	if in.Role != nil && strings.TrimSpace(*in.Role) != "" {
		role, ok := shared.ParseRole(*in.Role)
		if !ok {
			return User{}, ErrInvalidRole
		}
		p.Role = &role
	}
	if in.Password != nil && *in.Password != "" {
		hash, err := s.hash(*in.Password)
		if err != nil {
			return User{}, err
		}
		p.PasswordHash = &hash
	}
	if p.Empty() {
		return User{}, ErrNoChanges
	}
	user, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return User{}, err
	}
	meta := map[string]any{"password_changed": p.PasswordHash != nil}
	if p.Role != nil {
		meta["role"] = *p.Role
	}
	s.record(ctx, shared.AuditUserUpdated, id, meta)
	return user, nil
}

// Delete removes a user. Callers cannot delete themselves.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id == shared.ActorID(ctx) {
		return ErrDeleteSelf
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, shared.AuditUserDeleted, id, nil)
	return nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id int64, in ChangePasswordInput) error {
	if err := httpx.Validate(in); err != nil {
		return err
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return ErrWrongPassword
	}
	hash, err := s.hash(in.NewPassword)
	if err != nil {
		return err
	}
	_, err = s.repo.Update(ctx, id, Patch{PasswordHash: &hash})
	return err
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
