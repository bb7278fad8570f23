package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/dbx"
	"github.com/authgate/authgate/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (int64, error) {
	query := `
		INSERT INTO users (username, password, salt, user_type, is_enabled, is_del, created_at)
		VALUES ($1, $2, $3, $4, TRUE, FALSE, $5)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Password, user.Salt, user.UserType, user.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password, salt, user_type, is_enabled, is_del, last_login_time, created_at
		FROM users
		WHERE username = $1
	`
	return r.scanRow(r.db.QueryRowContext(ctx, query, username))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, password, salt, user_type, is_enabled, is_del, last_login_time, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE users SET last_login_time = $1 WHERE id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, password, salt []byte, at time.Time) error {
	query := `
		UPDATE users SET password = $1, salt = $2, update_time = $3 WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, password, salt, at, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanRow(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var lastLogin sql.NullTime

	err := row.Scan(
		&user.ID, &user.Username, &user.Password, &user.Salt,
		&user.UserType, &user.Enabled, &user.Deleted, &lastLogin, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if lastLogin.Valid {
		user.LastLoginAt = lastLogin.Time
	}

	return user, nil
}
