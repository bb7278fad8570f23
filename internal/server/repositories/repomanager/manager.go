// Package repomanager wires concrete repository implementations to database
// handles and owns schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/authgate/authgate/internal/dbx"
	"github.com/authgate/authgate/internal/server/repositories/authorizations"
	"github.com/authgate/authgate/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to a DBTX, so a service can
// run the same repository code against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Authorizations(db dbx.DBTX) authorizations.Repository
}
