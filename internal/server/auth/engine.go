// Package auth implements the authorization lifecycle engine: the state
// machine taking a session from creation through refresh rotation to
// revocation, plus the hot-path token verification used on every request.
//
// An Authorization has two states: Active (enabled) and Revoked (disabled,
// terminal). Tokens are self-contained JWTs, so killing one before its
// embedded expiry requires the deny list; the engine retires an access
// token there whenever a rotation or revocation supersedes it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/server/denylist"
	"github.com/authgate/authgate/internal/server/models"
	"github.com/authgate/authgate/internal/server/repositories/authorizations"
	"github.com/authgate/authgate/internal/server/token"
	"github.com/authgate/authgate/internal/server/users"
	"github.com/google/uuid"
)

// defaultClientType tags rows created by this server; other values are
// reserved for future client classes.
const defaultClientType int16 = 10

// UserDirectory is the slice of the user directory the engine consumes.
type UserDirectory interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error
}

// Session is the result of a successful create or refresh: the external
// session handle plus the freshly minted token pair.
type Session struct {
	ID           uuid.UUID
	AccessToken  *token.Token
	RefreshToken *token.Token
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal is the authenticated identity attached to a verified request.
type Principal struct {
	UserID int64
	Scopes []string
}

// Engine orchestrates the record store, the deny list, the token codec and
// the user directory. It holds no state of its own; the Authorization row
// is the single shared mutable resource and the store owns it.
type Engine struct {
	store      authorizations.Repository
	directory  UserDirectory
	deny       denylist.DenyList
	codec      *token.Codec
	logger     logging.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewEngine(store authorizations.Repository, directory UserDirectory, deny denylist.DenyList,
	codec *token.Codec, logger logging.Logger, accessTTL, refreshTTL time.Duration) *Engine {
	return &Engine{
		store:      store,
		directory:  directory,
		deny:       deny,
		codec:      codec,
		logger:     logger.With("module", "auth_engine"),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Login verifies credentials against the directory and, on success, creates
// an Authorization. Every rejected attempt is audited with a code naming
// the real reason, while the caller always gets the same uniform failure.
func (e *Engine) Login(ctx context.Context, username, password string, client models.ClientInfo) (*Session, error) {
	user, err := e.directory.Authenticate(ctx, username, password)
	if err != nil {
		var code int
		var userID int64
		var msg string
		switch {
		case errors.Is(err, users.ErrUnknownUser):
			code, msg = AuditLoginUnknownUser, username
		case errors.Is(err, users.ErrUserDeleted):
			code, userID = AuditLoginUserDeleted, user.ID
		case errors.Is(err, users.ErrUserDisabled):
			code, userID = AuditLoginUserDisabled, user.ID
		case errors.Is(err, users.ErrBadPassword):
			code, userID = AuditLoginBadPassword, user.ID
		default:
			return nil, fmt.Errorf("directory lookup: %w", err)
		}
		if err := e.audit(ctx, code, msg, userID, 0, client); err != nil {
			return nil, err
		}
		return nil, common.ErrAuthFailure
	}

	return e.Create(ctx, user, client)
}

// Create mints a token pair and persists a new Authorization for user. The
// caller must have authenticated the user already. Any storage failure is
// fatal for the call: a half-created session is never returned.
func (e *Engine) Create(ctx context.Context, user *models.User, client models.ClientInfo) (*Session, error) {
	scopes := []string{common.ScopeMember}
	if user.IsAdmin() {
		scopes = append(scopes, common.ScopeAdmin)
	}

	access, err := e.codec.Issue(strconv.FormatInt(user.ID, 10), scopes, e.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}

	sessionID := uuid.New()
	refreshJTI := uuid.New()
	now := time.Now()

	auth := &models.Authorization{
		UserID:          user.ID,
		UUID:            sessionID,
		ClientType:      defaultClientType,
		RefreshTokenJTI: refreshJTI,
		AccessTokenJTI:  access.JTI,
		AccessTokenExp:  access.ExpiresAt,
		AccessTokenIat:  access.IssuedAt,
		Enabled:         true,
		CreatedAt:       now,
	}

	authID, err := e.store.Create(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	// The refresh token's subject is the Authorization id, not the user id:
	// refresh validates against the session row, not the user row.
	refresh, err := e.codec.IssueWithID(strconv.FormatInt(authID, 10), []string{common.ScopeRefresh}, e.refreshTTL, refreshJTI)
	if err != nil {
		return nil, fmt.Errorf("minting refresh token: %w", err)
	}

	if err := e.directory.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	if err := e.audit(ctx, AuditLogin, "", user.ID, authID, client); err != nil {
		return nil, err
	}

	return &Session{
		ID:           sessionID,
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Refresh rotates the token pair of the session named by sessionID. The
// checks run in a fixed order and each failure short-circuits with its own
// audit code; the caller only ever sees a uniform failure.
func (e *Engine) Refresh(ctx context.Context, sessionID string, bearer string, client models.ClientInfo) (*Session, error) {
	external, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed session id", common.ErrValidation)
	}

	claims, err := e.codec.VerifyAndDecode(bearer)
	if err != nil {
		e.logger.Warn(ctx, "refresh token rejected by codec", "reason", err.Error())
		return nil, common.ErrAuthFailure
	}

	if !claims.HasScope(common.ScopeRefresh) {
		if err := e.audit(ctx, AuditRefreshNoScope, "", 0, 0, client); err != nil {
			return nil, err
		}
		return nil, common.ErrNoPermission
	}

	authID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, common.ErrAuthFailure
	}
	presentedJTI, err := claims.JTI()
	if err != nil {
		return nil, common.ErrAuthFailure
	}

	auth, err := e.store.GetByID(ctx, authID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			if err := e.audit(ctx, AuditRefreshNoAuthorization, "", 0, authID, client); err != nil {
				return nil, err
			}
			return nil, common.ErrAuthFailure
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	if auth.UUID != external {
		if err := e.audit(ctx, AuditRefreshSessionMismatch, "", auth.UserID, authID, client); err != nil {
			return nil, err
		}
		return nil, common.ErrAuthFailure
	}

	if !auth.Enabled {
		if err := e.audit(ctx, AuditRefreshDisabled, "", auth.UserID, authID, client); err != nil {
			return nil, err
		}
		return nil, common.ErrAuthFailure
	}

	if auth.RefreshTokenJTI != presentedJTI {
		if err := e.audit(ctx, AuditRefreshStaleToken, "", auth.UserID, authID, client); err != nil {
			return nil, err
		}
		return nil, common.ErrAuthFailure
	}

	user, err := e.directory.GetByID(ctx, auth.UserID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			if err := e.audit(ctx, AuditRefreshNoAuthorization, "", auth.UserID, authID, client); err != nil {
				return nil, err
			}
			return nil, common.ErrAuthFailure
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if !user.Enabled {
		if err := e.audit(ctx, AuditRefreshUserDisabled, "", auth.UserID, authID, client); err != nil {
			return nil, err
		}
		return nil, common.ErrAuthFailure
	}
	if user.Deleted {
		if err := e.audit(ctx, AuditRefreshUserDeleted, "", auth.UserID, authID, client); err != nil {
			return nil, err
		}
		return nil, common.ErrAuthFailure
	}

	scopes := []string{common.ScopeMember}
	if user.IsAdmin() {
		scopes = append(scopes, common.ScopeAdmin)
	}

	access, err := e.codec.Issue(strconv.FormatInt(user.ID, 10), scopes, e.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("minting access token: %w", err)
	}
	refreshJTI := uuid.New()
	refresh, err := e.codec.IssueWithID(strconv.FormatInt(authID, 10), []string{common.ScopeRefresh}, e.refreshTTL, refreshJTI)
	if err != nil {
		return nil, fmt.Errorf("minting refresh token: %w", err)
	}

	// The superseded access token must be dead before the new pair becomes
	// visible: deny-list first, row update second. An orphan denial entry
	// only makes access stricter; the reverse order would leave a window
	// where the rotated-away token still verifies.
	if err := e.retireAccessToken(ctx, auth); err != nil {
		return nil, err
	}

	now := time.Now()
	rot := models.Rotation{
		AccessTokenJTI:  access.JTI,
		AccessTokenExp:  access.ExpiresAt,
		AccessTokenIat:  access.IssuedAt,
		RefreshTokenJTI: refreshJTI,
		At:              now,
	}
	if err := e.store.Rotate(ctx, authID, presentedJTI, rot); err != nil {
		if errors.Is(err, common.ErrConflict) {
			// A concurrent refresh won the race; this caller must not
			// report success with stale data.
			if err := e.audit(ctx, AuditRefreshStaleToken, "", auth.UserID, authID, client); err != nil {
				return nil, err
			}
			return nil, common.ErrAuthFailure
		}
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	if err := e.audit(ctx, AuditRefresh, "", auth.UserID, authID, client); err != nil {
		return nil, err
	}

	return &Session{
		ID:           external,
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    auth.CreatedAt,
		UpdatedAt:    now,
	}, nil
}

// Revoke disables the session named by sessionID and retires its current
// access token. A second revoke of the same session fails like any other
// authentication failure; the audit log still tells the two apart.
func (e *Engine) Revoke(ctx context.Context, sessionID string, client models.ClientInfo) error {
	external, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("%w: malformed session id", common.ErrValidation)
	}

	auth, err := e.store.GetByUUID(ctx, external)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			if err := e.audit(ctx, AuditRevokeUnknownSession, "", 0, 0, client); err != nil {
				return err
			}
			return common.ErrAuthFailure
		}
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	if !auth.Enabled {
		if err := e.audit(ctx, AuditRevokeAlreadyRevoked, "", auth.UserID, auth.ID, client); err != nil {
			return err
		}
		return common.ErrAuthFailure
	}

	if err := e.store.Disable(ctx, auth.ID); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	// The refresh token dies with the row (its jti check can never pass
	// again); only the outstanding access token needs the deny list.
	if err := e.retireAccessToken(ctx, auth); err != nil {
		return err
	}

	return e.audit(ctx, AuditRevoke, "", auth.UserID, auth.ID, client)
}

// ChangePassword rotates the user's password credential after verifying the
// old one, and audits the successful change. A wrong old password is a
// validation failure the client may be told about; a deleted or disabled
// account fails like any other authentication failure.
func (e *Engine) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string, client models.ClientInfo) error {
	if err := e.directory.ChangePassword(ctx, userID, oldPassword, newPassword); err != nil {
		switch {
		case errors.Is(err, users.ErrBadPassword):
			return fmt.Errorf("%w: old password incorrect", common.ErrValidation)
		case errors.Is(err, users.ErrUnknownUser),
			errors.Is(err, users.ErrUserDeleted),
			errors.Is(err, users.ErrUserDisabled):
			return common.ErrAuthFailure
		default:
			return fmt.Errorf("changing password: %w", err)
		}
	}

	return e.audit(ctx, AuditPasswordChange, "", userID, 0, client)
}

// Verify authenticates a bearer string for the hot path. It trusts the
// token signature plus the deny list; the user's enabled/deleted flags are
// re-validated only at create and refresh time, which keeps verify to one
// cache lookup at the cost of a revocation lag bounded by the access TTL.
func (e *Engine) Verify(ctx context.Context, bearer string, requiredScope string) (*Principal, error) {
	claims, err := e.codec.VerifyAndDecode(bearer)
	if err != nil {
		e.logger.Debug(ctx, "bearer rejected by codec", "reason", err.Error())
		return nil, common.ErrAuthFailure
	}

	if requiredScope != "" && !claims.HasScope(requiredScope) {
		return nil, common.ErrNoPermission
	}

	denied, err := e.deny.Contains(ctx, claims.ID)
	if err != nil {
		// Fail closed: an unreachable deny list must not widen access.
		e.logger.Error(ctx, "deny list lookup failed", "error", err.Error())
		return nil, common.ErrAuthFailure
	}
	if denied {
		return nil, common.ErrAuthFailure
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, common.ErrAuthFailure
	}

	return &Principal{UserID: userID, Scopes: claims.Scopes}, nil
}

// retireAccessToken records the row's current access token in the deny
// list and the durable blacklist. Both writes must land before the caller
// reports success; a dropped denial silently reopens the token's validity
// window until its natural expiry.
func (e *Engine) retireAccessToken(ctx context.Context, auth *models.Authorization) error {
	remaining := time.Until(auth.AccessTokenExp)

	if err := e.deny.Add(ctx, auth.AccessTokenJTI.String(), remaining); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	entry := &models.AuthBlacklist{
		AccessTokenJTI: auth.AccessTokenJTI,
		AccessTokenExp: auth.AccessTokenExp,
		UserID:         auth.UserID,
	}
	if err := e.store.InsertBlacklist(ctx, entry); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}

	return nil
}

func (e *Engine) audit(ctx context.Context, code int, msg string, userID, authID int64, client models.ClientInfo) error {
	entry := &models.AuditLogEntry{
		Code:       code,
		Message:    msg,
		UserID:     userID,
		AuthID:     authID,
		ClientType: defaultClientType,
		Client:     client,
		LoggedAt:   time.Now(),
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return nil
}
