package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/marovskiy/mailgram/internal/config"
	"github.com/marovskiy/mailgram/internal/credential"
	"github.com/marovskiy/mailgram/internal/database"
	"github.com/marovskiy/mailgram/internal/mailbox"
	"github.com/marovskiy/mailgram/internal/poller"
	"github.com/marovskiy/mailgram/internal/render"
	"github.com/marovskiy/mailgram/internal/telegram"
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
	logger.Info("starting mail-to-telegram bot")

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
	secrets := credential.NewStore()
	mailboxOpts := mailbox.Options{
		SocketTimeout: cfg.SocketTimeout,
		Logger:        logger,
	}
	cache := mailbox.NewCache(secrets, mailboxOpts, logger)
	defer cache.Close()

	// Create bot
	tgBot, err := telegram.NewBot(telegram.BotDeps{
		Config:  cfg,
		DB:      db,
		Secrets: secrets,
		Mailbox: mailboxOpts,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Create polling engine and error reporter
	errors := poller.NewAggregator(tgBot.Sender(), cfg.OwnerChatID, cfg.ErrReportInterval, logger)
	engine := poller.NewEngine(poller.Deps{
		Store:    db,
		Clients:  cache,
		Delivery: tgBot.Sender(),
		Renderer: render.NewRenderer(),
		Errors:   errors,
		Logger:   logger,
		Interval: cfg.PollInterval,
		Timeout:  cfg.RequestTimeout,
		Workers:  cfg.PollWorkers,
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")
		cancel()
	}()

	// Start schedulers
	go engine.Run(ctx)
	go errors.Run(ctx)

	// Start bot
	logger.Info("bot is running, press Ctrl+C to stop")
	tgBot.Start(ctx)

	logger.Info("bot stopped")
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
