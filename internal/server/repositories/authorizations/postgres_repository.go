package authorizations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/dbx"
	"github.com/authgate/authgate/internal/server/models"
	"github.com/google/uuid"
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

func (r *PostgresRepository) Create(ctx context.Context, auth *models.Authorization) (int64, error) {
	query := `
		INSERT INTO authorizations
			(user_id, uuid, client_type, refresh_token_id, access_token_id, access_token_exp, access_token_iat, is_enabled, create_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query,
		auth.UserID, auth.UUID, auth.ClientType, auth.RefreshTokenJTI,
		auth.AccessTokenJTI, auth.AccessTokenExp, auth.AccessTokenIat,
		auth.Enabled, auth.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

// GetByID joins the user directory so a disabled or deleted account makes
// the session row invisible, exactly as the refresh path requires.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Authorization, error) {
	query := `
		SELECT a.id, a.user_id, a.uuid, a.client_type, a.refresh_token_id,
		       a.access_token_id, a.access_token_exp, a.access_token_iat,
		       a.is_enabled, a.create_time, a.update_time, a.last_refresh_time
		FROM authorizations a
		INNER JOIN users b ON a.user_id = b.id
		WHERE a.id = $1 AND b.is_enabled AND NOT b.is_del
	`
	return r.scanRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*models.Authorization, error) {
	query := `
		SELECT id, user_id, uuid, client_type, refresh_token_id,
		       access_token_id, access_token_exp, access_token_iat,
		       is_enabled, create_time, update_time, last_refresh_time
		FROM authorizations
		WHERE uuid = $1
	`
	return r.scanRow(r.db.QueryRowContext(ctx, query, id))
}

// Rotate is a compare-and-swap on the stored refresh jti. Zero rows
// affected means another refresh won the race (or the row was revoked in
// between); the caller gets common.ErrConflict and must fail the request.
func (r *PostgresRepository) Rotate(ctx context.Context, id int64, prevRefreshJTI uuid.UUID, rot models.Rotation) error {
	query := `
		UPDATE authorizations
		SET refresh_token_id = $1, access_token_id = $2, access_token_exp = $3,
		    access_token_iat = $4, update_time = $5, last_refresh_time = $5
		WHERE id = $6 AND refresh_token_id = $7 AND is_enabled
	`
	res, err := r.db.ExecContext(ctx, query,
		rot.RefreshTokenJTI, rot.AccessTokenJTI, rot.AccessTokenExp,
		rot.AccessTokenIat, rot.At, id, prevRefreshJTI,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrConflict
	}
	return nil
}

func (r *PostgresRepository) Disable(ctx context.Context, id int64) error {
	query := `
		UPDATE authorizations
		SET is_enabled = FALSE, update_time = now()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertBlacklist(ctx context.Context, entry *models.AuthBlacklist) error {
	query := `
		INSERT INTO authorizations_blacklist (access_token_id, access_token_exp, user_id)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, entry.AccessTokenJTI, entry.AccessTokenExp, entry.UserID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO authorizations_logs (user_id, log_type, ip, log_time, client_type, auth_id, log, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.UserID, entry.Code, entry.Client.IP, entry.LoggedAt,
		entry.ClientType, entry.AuthID, entry.Message, entry.Client.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) scanRow(row *sql.Row) (*models.Authorization, error) {
	auth := &models.Authorization{}
	var updateTime, lastRefreshTime sql.NullTime

	err := row.Scan(
		&auth.ID, &auth.UserID, &auth.UUID, &auth.ClientType,
		&auth.RefreshTokenJTI, &auth.AccessTokenJTI, &auth.AccessTokenExp,
		&auth.AccessTokenIat, &auth.Enabled, &auth.CreatedAt,
		&updateTime, &lastRefreshTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	// update_time and last_refresh_time are the only legitimately NULL
	// columns: zero time means "never".
	if updateTime.Valid {
		auth.UpdatedAt = updateTime.Time
	}
	if lastRefreshTime.Valid {
		auth.LastRefreshAt = lastRefreshTime.Time
	}

	return auth, nil
}
