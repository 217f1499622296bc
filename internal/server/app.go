// Package server initializes and runs the authentication server: config,
// database and migrations, services, and the HTTP API with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avelancourt/passguard/internal/cryptox"
	"github.com/avelancourt/passguard/internal/logging"
	"github.com/avelancourt/passguard/internal/passcheck"
	"github.com/avelancourt/passguard/internal/server/config"
	"github.com/avelancourt/passguard/internal/server/httpapi"
	"github.com/avelancourt/passguard/internal/server/mail"
	"github.com/avelancourt/passguard/internal/server/repositories/repomanager"
	"github.com/avelancourt/passguard/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler *httpapi.Handler
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	storageKey, err := hex.DecodeString(cfg.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("storage key is not valid hex: %w", err)
	}
	keychain, err := cryptox.NewKeychain(storageKey)
	if err != nil {
		return nil, fmt.Errorf("keychain init error: %w", err)
	}

	mailer := mail.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPassword, logger)
	mfa := services.NewMFAService(db, rm, mailer, keychain, cfg, logger)
	auth := services.NewAuthService(db, rm, mfa, cfg, logger)
	pwned := passcheck.NewChecker(cfg.HIBPBaseURL, cfg.HIBPTimeout, logger)

	handler := httpapi.NewHandler(auth, mfa, pwned, logger)

	return &App{config: cfg, logger: logger, db: db, handler: handler}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting http server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return app.db.Close()
}
