// Package server initializes and runs the AuthGate server: database and
// denial cache connections, schema migrations, the lifecycle engine and the
// HTTP endpoint, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/authgate/authgate/internal/logging"
	"github.com/authgate/authgate/internal/server/auth"
	"github.com/authgate/authgate/internal/server/config"
	"github.com/authgate/authgate/internal/server/denylist"
	"github.com/authgate/authgate/internal/server/httpapi"
	"github.com/authgate/authgate/internal/server/repositories/repomanager"
	"github.com/authgate/authgate/internal/server/token"
	"github.com/authgate/authgate/internal/server/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var deny denylist.DenyList
	if cfg.RedisAddr != "" {
		deny = denylist.NewRedisDenyList(redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}))
	} else {
		// Single-node fallback: denials are not shared across replicas.
		logger.Warn(ctx, "no redis address configured, using in-process denial cache")
		deny = denylist.NewMemoryDenyList()
	}

	codec := token.NewCodec([]byte(cfg.JWTSecret), []byte(cfg.SubjectSealKey))
	directory := users.NewService(db, rm)
	engine := auth.NewEngine(rm.Authorizations(db), directory, deny, codec, logger,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		server: httpapi.NewServer(cfg.EndpointAddr, logger, engine, directory),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
