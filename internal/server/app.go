// Package server wires the catalog backend together: it opens the kv store,
// builds the services, starts the expired-row janitor and runs the HTTP
// server until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/goldflix/goldflix/internal/kv/postgres"
	"github.com/goldflix/goldflix/internal/logging"
	"github.com/goldflix/goldflix/internal/server/accounts"
	"github.com/goldflix/goldflix/internal/server/appconfig"
	"github.com/goldflix/goldflix/internal/server/backup"
	"github.com/goldflix/goldflix/internal/server/cache"
	"github.com/goldflix/goldflix/internal/server/catalog"
	"github.com/goldflix/goldflix/internal/server/config"
	"github.com/goldflix/goldflix/internal/server/httpapi"
	"github.com/goldflix/goldflix/internal/server/ratelimit"
	"github.com/goldflix/goldflix/internal/server/search"
	"github.com/goldflix/goldflix/internal/server/streamtoken"
)

type App struct {
	config *config.Config
	logger logging.Logger
	store  *postgres.Store
	api    *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	handler := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(handler)

	store, err := postgres.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	c := cache.New()
	cat := catalog.NewService(store, c, logger)
	acc := accounts.NewService(store, cat, cfg.PasswordSalt, logger)
	backups := backup.NewService(store, cat, logger)

	s3store, err := backup.NewS3Store(backups, cfg)
	if err != nil {
		logger.Warn(ctx, "off-site backup storage unavailable", "error", err)
		s3store = nil
	}

	api := httpapi.NewServer(httpapi.Deps{
		Catalog:  cat,
		Search:   search.NewEngine(store, c),
		Tokens:   streamtoken.NewService(store, logger),
		Limiter:  ratelimit.NewLimiter(store, nil, logger),
		Accounts: acc,
		AppCfg:   appconfig.NewService(store, c),
		Backups:  backups,
		S3:       s3store,
		Config:   cfg,
		Log:      logger,
	})

	return &App{config: cfg, logger: logger, store: store, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.api.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	app.store.StartJanitor(ctx, app.config.JanitorInterval, app.logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
