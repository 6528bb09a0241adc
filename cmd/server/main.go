// Command server runs the chattrix auth and user API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chattrix/chattrix/internal/auth"
	"github.com/chattrix/chattrix/internal/cache"
	"github.com/chattrix/chattrix/internal/config"
	"github.com/chattrix/chattrix/internal/database"
	"github.com/chattrix/chattrix/internal/httpapi"
	"github.com/chattrix/chattrix/internal/mailer"
	"github.com/chattrix/chattrix/internal/password"
	"github.com/chattrix/chattrix/internal/rate"
	"github.com/chattrix/chattrix/internal/store"
	"github.com/chattrix/chattrix/internal/token"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg := config.Load()

	var handlerOpts *slog.HandlerOptions
	if !cfg.Production() {
		handlerOpts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	if cfg.JWTAccessSecret == "" || cfg.JWTRefreshSecret == "" {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		if err := mongoClient.Disconnect(disconnectCtx); err != nil {
			logger.Warn("mongo disconnect", slog.Any("error", err))
		}
	}()

	rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	users := store.NewMongoUsers(mongoClient.Database(cfg.MongoDB))
	if err := users.EnsureIndexes(ctx); err != nil {
		return err
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Issuer:        "chattrix",
	})
	if err != nil {
		return err
	}

	hasher, err := password.NewHasher(password.DefaultParams)
	if err != nil {
		return err
	}

	sender, err := buildSender(cfg, logger)
	if err != nil {
		return err
	}
	dispatcher := mailer.NewDispatcher(mailer.DispatcherConfig{}, sender, logger)
	defer dispatcher.Close()

	svc := auth.NewService(
		auth.Config{OTPTTL: cfg.OTPTTL, CooldownTTL: cfg.CooldownTTL},
		users,
		cache.NewStore(rdb),
		rate.New(rdb),
		tokens,
		hasher,
		dispatcher,
		logger,
	)

	api := httpapi.NewServer(svc, users, logger, cfg.Production())

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.Router(os.Stdout, cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildSender wires SMTP when configured and falls back to logging OTP mails
// locally so the flows stay usable in development.
func buildSender(cfg config.Config, logger *slog.Logger) (mailer.Sender, error) {
	if cfg.SMTPServer == "" {
		logger.Warn("SMTP_SERVER not set, mail will only be logged")
		return logSender{logger: logger}, nil
	}
	return mailer.NewSMTPSender(cfg.SMTPServer, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
}

type logSender struct {
	logger *slog.Logger
}

func (s logSender) Send(_ context.Context, msg mailer.Message) error {
	s.logger.Info("mail (not sent)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
