package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/server/auth"
	"github.com/authgate/authgate/internal/server/users"
)

// Uniform client-facing messages. The real rejection reason lives in the
// audit log only.
const (
	msgAuthFailure  = "Authentication failure"
	msgNoPermission = "No permission"
	msgValidation   = "Validation failure"
	msgInternal     = "Internal error"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"access_token"`
	ExpiresIn    int64     `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func sessionBody(session *auth.Session) sessionResponse {
	return sessionResponse{
		ID:           session.ID.String(),
		AccessToken:  session.AccessToken.Value,
		ExpiresIn:    int64(session.AccessToken.TTL.Seconds()),
		RefreshToken: session.RefreshToken.Value,
		CreatedAt:    session.CreatedAt,
		UpdatedAt:    session.UpdatedAt,
	}
}

// handleRegister creates a regular member account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "Invalid registration data")
		return
	}

	user, err := s.registrar.Register(r.Context(), req.Username, req.Password, 1)
	if err != nil {
		if errors.Is(err, users.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "Username already taken")
			return
		}
		s.logger.Error(r.Context(), "registration failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}{ID: user.ID, Username: user.Username})
}

// handleLogin creates a session from username/password credentials. Bad
// credentials answer 422 regardless of the underlying reason.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, msgAuthFailure)
		return
	}

	session, err := s.engine.Login(r.Context(), req.Username, req.Password, clientInfo(r))
	if err != nil {
		if errors.Is(err, common.ErrAuthFailure) || errors.Is(err, common.ErrValidation) {
			writeError(w, http.StatusUnprocessableEntity, msgAuthFailure)
			return
		}
		s.logger.Error(r.Context(), "login failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, sessionBody(session))
}

// handleRefresh rotates the token pair of the session in the path. The
// bearer must be the session's current refresh token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	bearer, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, msgAuthFailure)
		return
	}

	session, err := s.engine.Refresh(r.Context(), r.PathValue("id"), bearer, clientInfo(r))
	if err != nil {
		s.writeLifecycleError(w, r, "refresh", err)
		return
	}

	writeJSON(w, http.StatusOK, sessionBody(session))
}

// handleRevoke disables the session in the path and retires its access
// token. The caller authenticates with an access token via requireScope.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Revoke(r.Context(), r.PathValue("id"), clientInfo(r)); err != nil {
		s.writeLifecycleError(w, r, "revoke", err)
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// handleChangePassword rotates the authenticated user's password. The old
// password is re-verified even though the request already carries a valid
// access token.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgAuthFailure)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.OldPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusUnprocessableEntity, msgValidation)
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		writeError(w, http.StatusUnprocessableEntity, "New password and confirmation do not match")
		return
	}

	err := s.engine.ChangePassword(r.Context(), principal.UserID, req.OldPassword, req.NewPassword, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrValidation):
			writeError(w, http.StatusUnprocessableEntity, "Old password incorrect")
		case errors.Is(err, common.ErrAuthFailure):
			writeError(w, http.StatusUnauthorized, msgAuthFailure)
		default:
			s.logger.Error(r.Context(), "password change failed", "error", err.Error())
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgAuthFailure)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		UserID int64    `json:"user_id"`
		Scopes []string `json:"scopes"`
	}{UserID: principal.UserID, Scopes: principal.Scopes})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

// writeLifecycleError maps engine errors for the refresh/revoke paths.
// Malformed input is a plain client error, not a security event, and
// answers 422; rejected credentials stay uniform behind 401.
func (s *Server) writeLifecycleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, msgValidation)
	case errors.Is(err, common.ErrAuthFailure):
		writeError(w, http.StatusUnauthorized, msgAuthFailure)
	case errors.Is(err, common.ErrNoPermission):
		writeError(w, http.StatusForbidden, msgNoPermission)
	default:
		s.logger.Error(r.Context(), op+" failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}
