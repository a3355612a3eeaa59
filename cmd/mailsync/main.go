package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/proprioo/mailsync/internal/config"
	"github.com/proprioo/mailsync/internal/crypto"
	"github.com/proprioo/mailsync/internal/database"
	"github.com/proprioo/mailsync/internal/email"
	"github.com/proprioo/mailsync/internal/oauth"
	syncer "github.com/proprioo/mailsync/internal/sync"
	"github.com/proprioo/mailsync/pkg/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailbox sync engine")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Create components
	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to create secret codec", "error", err)
		os.Exit(1)
	}

	oauthManager := oauth.NewManager(oauth.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
		RevokeURL:    cfg.OAuthRevokeURL,
		UserInfoURL:  cfg.OAuthUserInfoURL,
	}, codec, logger)

	resolver := email.NewResolver(codec, oauthManager, cfg.DialTimeout, cfg.AuthTimeout, logger)
	parser := email.NewParser(logger)
	fetcher := email.NewFetcher(resolver, parser, logger)
	store := database.NewConnectionStore(db, codec)

	// The business layer consuming parsed messages lives outside this
	// engine; by default new batches are only logged.
	handler := func(ctx context.Context, conn *models.EmailConnection, emails []*models.ParsedEmail) error {
		for _, msg := range emails {
			logger.Info("new email",
				"connection_id", conn.ID,
				"uid", msg.UID,
				"subject", msg.Subject,
				"attachments", len(msg.Attachments),
			)
		}
		return nil
	}

	runner := syncer.NewRunner(store, resolver, fetcher, handler, cfg.SyncWorkers, logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("sync engine is running, press Ctrl+C to stop")
	runner.Run(ctx, cfg.PollInterval)

	logger.Info("sync engine stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
