// Package authorizations declares the record-store contract for session
// (Authorization) rows, the durable token blacklist, and the audit log.
package authorizations

import (
	"context"

	"github.com/authgate/authgate/internal/server/models"
	"github.com/google/uuid"
)

// Repository is the durable store of Authorization rows. Implementations
// must return common.ErrNotFound for absent rows and common.ErrConflict
// from Rotate when the stored refresh jti no longer matches.
type Repository interface {
	// Create inserts a new Authorization and returns its assigned id.
	Create(ctx context.Context, auth *models.Authorization) (int64, error)

	// GetByID fetches a row by internal id, restricted to rows whose owning
	// user is enabled and not deleted.
	GetByID(ctx context.Context, id int64) (*models.Authorization, error)

	// GetByUUID fetches a row by its external session id.
	GetByUUID(ctx context.Context, id uuid.UUID) (*models.Authorization, error)

	// Rotate replaces the token fields of row id, but only while the stored
	// refresh jti still equals prevRefreshJTI and the row is enabled. The
	// conditional update is the linearization point for concurrent
	// refreshes: exactly one of two racing calls can succeed.
	Rotate(ctx context.Context, id int64, prevRefreshJTI uuid.UUID, rot models.Rotation) error

	// Disable marks the row revoked. Terminal; never reverted.
	Disable(ctx context.Context, id int64) error

	// InsertBlacklist appends a durable blacklist record for a retired
	// access token.
	InsertBlacklist(ctx context.Context, entry *models.AuthBlacklist) error

	// AppendAudit appends one immutable lifecycle event.
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
}
