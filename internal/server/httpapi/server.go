// Package httpapi exposes the authorization lifecycle over HTTP: login,
// refresh and revoke on the /authorizations resource, plus bearer-token
// middleware for protected routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/authgate/authgate/internal/common"
	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/server/auth"
	"github.com/authgate/authgate/internal/server/models"
)

// Registrar is the slice of the user directory the registration endpoint
// needs.
type Registrar interface {
	Register(ctx context.Context, username, password string, userType int16) (*models.User, error)
}

type Server struct {
	address   string
	engine    *auth.Engine
	registrar Registrar
	logger    logging.Logger
}

func NewServer(address string, l logging.Logger, engine *auth.Engine, registrar Registrar) *Server {
	return &Server{
		address:   address,
		engine:    engine,
		registrar: registrar,
		logger:    l.With("module", "http_server"),
	}
}

// Handler builds the route table. Exposed separately from Run so tests can
// drive it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /users", s.handleRegister)
	mux.HandleFunc("POST /authorizations", s.handleLogin)
	mux.HandleFunc("PUT /authorizations/{id}", s.handleRefresh)
	mux.HandleFunc("DELETE /authorizations/{id}", s.requireScope(common.ScopeMember, s.handleRevoke))
	mux.HandleFunc("GET /userinfo", s.requireScope(common.ScopeMember, s.handleUserInfo))
	mux.HandleFunc("PUT /user/password", s.requireScope(common.ScopeMember, s.handleChangePassword))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
