package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/auth"
)

// Transactor runs fn as one unit of work. Repositories called with the ctx
// handed to fn take part in the same transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	users  UserRepository
	roles  RoleRepository
	tx     Transactor
	hasher auth.PasswordHasher
	logger zerolog.Logger
}

func NewService(users UserRepository, roles RoleRepository, tx Transactor, hasher auth.PasswordHasher, logger zerolog.Logger) *Service {
	return &Service{users: users, roles: roles, tx: tx, hasher: hasher, logger: logger}
}

// AddNewUser registers a user with no roles. The username must be free and
// password must equal confirm.
func (s *Service) AddNewUser(ctx context.Context, username, password, confirm, email string) (*AppUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", apperr.ErrValidation)
	}

	var user *AppUser
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		_, found, err := s.LoadUserByUsername(ctx, username)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("user %q: %w", username, apperr.ErrConflict)
		}
		if password != confirm {
			return fmt.Errorf("%w: passwords do not match", apperr.ErrValidation)
		}

		hash, err := s.hasher.Hash(password)
		if err != nil {
			return err
		}
		user = &AppUser{
			ID:           uuid.NewString(),
			Username:     username,
			PasswordHash: hash,
			Email:        email,
			Roles:        []string{},
		}
		return s.users.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", username).Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// AddNewRole creates a role. Role names are unique.
func (s *Service) AddNewRole(ctx context.Context, name string) (*AppRole, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", apperr.ErrValidation)
	}

	role := &AppRole{Name: name}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := s.roles.FindByID(ctx, name)
		if err == nil {
			return fmt.Errorf("role %q: %w", name, apperr.ErrConflict)
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return s.roles.Save(ctx, role)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("role", name).Msg("role created")
	return role, nil
}

// AddRoleToUser grants role to the user. Granting a role already held is a
// no-op.
func (s *Service) AddRoleToUser(ctx context.Context, username, role string) error {
	return s.changeRoles(ctx, username, role, (*AppUser).grant, "role granted")
}

// RemoveRoleFromUser revokes role from the user. Revoking a role not held is
// a no-op.
func (s *Service) RemoveRoleFromUser(ctx context.Context, username, role string) error {
	return s.changeRoles(ctx, username, role, (*AppUser).revoke, "role revoked")
}

func (s *Service) changeRoles(ctx context.Context, username, role string, apply func(*AppUser, string) bool, msg string) error {
	changed := false
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByUsername(ctx, username)
		if err != nil {
			return err
		}
		if _, err := s.roles.FindByID(ctx, role); err != nil {
			return err
		}
		if !apply(user, role) {
			return nil
		}
		changed = true
		return s.users.Save(ctx, user)
	})
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info().Str("username", username).Str("role", role).Msg(msg)
	}
	return nil
}

// LoadUserByUsername returns the user and true, or nil and false when no
// such user exists.
func (s *Service) LoadUserByUsername(ctx context.Context, username string) (*AppUser, bool, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Credentials implements auth.CredentialStore.
func (s *Service) Credentials(ctx context.Context, username string) (*auth.Credentials, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return &auth.Credentials{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Roles:        user.Roles,
	}, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*AppUser, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) ListRoles(ctx context.Context, limit, offset int) ([]*AppRole, int, error) {
	return s.roles.List(ctx, limit, offset)
}
