package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/server/auth"
	"github.com/authgate/authgate/internal/server/models"
)

type contextKey int

const principalKey contextKey = iota

// PrincipalFromContext returns the principal attached by requireScope.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok
}

const bearerPrefix = "Bearer "

// bearerToken extracts the bearer string from the Authorization header.
// Scheme and length are checked here so malformed headers never reach the
// engine.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	return header[len(bearerPrefix):], true
}

// requireScope authenticates the request's bearer token, requires the given
// scope and attaches the principal to the request context. Rejections use
// the same uniform body the lifecycle operations use.
func (s *Server) requireScope(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, msgAuthFailure)
			return
		}

		principal, err := s.engine.Verify(r.Context(), bearer, scope)
		if err != nil {
			if errors.Is(err, common.ErrNoPermission) {
				writeError(w, http.StatusForbidden, msgNoPermission)
				return
			}
			writeError(w, http.StatusUnauthorized, msgAuthFailure)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	}
}

// clientInfo extracts the caller's address and user agent for the audit
// trail. Proxy headers win over the socket peer: X-Forwarded-For first hop,
// then X-Real-IP, then RemoteAddr.
func clientInfo(r *http.Request) models.ClientInfo {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	} else if real := r.Header.Get("X-Real-IP"); real != "" {
		ip = real
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}

	return models.ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}
