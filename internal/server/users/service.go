// Package users implements the user directory: account registration and
// credential verification. It never issues tokens; the authorization
// lifecycle engine consumes it through a narrow interface.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/cryptox"
	"github.com/authgate/authgate/internal/dbx"
	"github.com/authgate/authgate/internal/server/models"
	"github.com/authgate/authgate/internal/server/repositories/repomanager"
)

// Typed authentication failures. Callers must fold these into a uniform
// client-facing error; they exist so the audit log can tell them apart.
var (
	ErrUnknownUser  = errors.New("unknown user")
	ErrUserDisabled = errors.New("user disabled")
	ErrUserDeleted  = errors.New("user deleted")
	ErrBadPassword  = errors.New("bad password")
)

// ErrUsernameTaken rejects a registration for an already-used login name.
var ErrUsernameTaken = errors.New("username taken")

const saltSize = 16

// Service provides directory operations over the users repository.
type Service struct {
	db *sql.DB
	rm repomanager.RepositoryManager
}

func NewService(db *sql.DB, rm repomanager.RepositoryManager) *Service {
	return &Service{db: db, rm: rm}
}

// Register creates an account with an argon2id password hash under a fresh
// per-user salt. The uniqueness check and the insert run in one transaction
// so two concurrent registrations of the same name cannot both succeed.
func (s *Service) Register(ctx context.Context, username, password string, userType int16) (*models.User, error) {
	salt := common.GenerateRandByteArray(saltSize)

	user := &models.User{
		Username:  username,
		Password:  cryptox.HashPassword([]byte(password), salt),
		Salt:      salt,
		UserType:  userType,
		Enabled:   true,
		CreatedAt: time.Now(),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Users(tx)

		if _, err := repo.GetByUsername(ctx, username); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: %w", common.ErrStorage, err)
		}

		id, err := repo.Create(ctx, user)
		if err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		user.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Authenticate verifies username/password against the directory, checking
// existence, deletion, enablement, then the password itself. On a typed
// failure the matched account (if any) is still returned so the caller can
// record which account was targeted.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.rm.Users(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	if user.Deleted {
		return user, ErrUserDeleted
	}
	if !user.Enabled {
		return user, ErrUserDisabled
	}
	if !cryptox.CheckPassword(user.Password, []byte(password), user.Salt) {
		return user, ErrBadPassword
	}

	return user, nil
}

// ChangePassword re-hashes the account's password under a fresh salt after
// verifying the old one. The whole read-verify-update runs in a single
// transaction. Returns ErrBadPassword when the old password does not match;
// a deleted or disabled account gets the same typed errors Authenticate
// uses.
func (s *Service) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Users(tx)

		user, err := repo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return ErrUnknownUser
			}
			return fmt.Errorf("%w: %w", common.ErrStorage, err)
		}

		if user.Deleted {
			return ErrUserDeleted
		}
		if !user.Enabled {
			return ErrUserDisabled
		}
		if !cryptox.CheckPassword(user.Password, []byte(oldPassword), user.Salt) {
			return ErrBadPassword
		}

		salt := common.GenerateRandByteArray(saltSize)
		hash := cryptox.HashPassword([]byte(newPassword), salt)

		if err := repo.UpdatePassword(ctx, id, hash, salt, time.Now()); err != nil {
			return fmt.Errorf("%w: %w", common.ErrStorage, err)
		}
		return nil
	})
}

// GetByID fetches an account by id.
func (s *Service) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.rm.Users(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return user, nil
}

// UpdateLastLogin stamps the account's last successful login.
func (s *Service) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.rm.Users(s.db).UpdateLastLogin(ctx, id, at)
}
