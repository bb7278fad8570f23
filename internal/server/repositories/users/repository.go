// Package users declares the user-directory contract consumed by the
// authorization lifecycle: account lookup plus the last-login stamp.
package users

import (
	"context"
	"time"

	"github.com/authgate/authgate/internal/server/models"
)

// Repository is the narrow user-directory interface the auth service needs.
type Repository interface {
	// Create inserts a new account and returns its assigned id.
	Create(ctx context.Context, user *models.User) (int64, error)

	// GetByUsername fetches an account by login name, common.ErrNotFound
	// when absent.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByID fetches an account by id, common.ErrNotFound when absent.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// UpdateLastLogin stamps the account's last successful login.
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error

	// UpdatePassword replaces the account's password hash and salt.
	UpdatePassword(ctx context.Context, id int64, password, salt []byte, at time.Time) error
}
