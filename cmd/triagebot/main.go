// Triagebot server: polls security alerts, converses with the affected
// users over chat, verifies responses with 2FA pushes, and records the
// outcome for human review.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/triagesec/triagebot/pkg/api"
	"github.com/triagesec/triagebot/pkg/auth"
	"github.com/triagesec/triagebot/pkg/bot"
	"github.com/triagesec/triagebot/pkg/chat"
	"github.com/triagesec/triagebot/pkg/config"
	"github.com/triagesec/triagebot/pkg/database"
	"github.com/triagesec/triagebot/pkg/suppress"
	"github.com/triagesec/triagebot/pkg/tasker"
	"github.com/triagesec/triagebot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./deploy/config/bot.yaml"),
		"Path to bot configuration file")
	flag.Parse()

	// Load .env from the config directory
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting triagebot", "version", version.Full(), "config", *configPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Stores
	taskStore := tasker.NewSQLStore(dbClient)
	ignoreStore := suppress.NewSQLIgnoreStore(dbClient)
	blacklist, err := suppress.LoadSQLBlacklist(ctx, dbClient)
	if err != nil {
		slog.Error("Failed to load blacklist", "error", err)
		os.Exit(1)
	}

	// 4. Chat adapter
	slackChat := chat.NewSlack(chat.SlackOptions{
		Token:    cfg.Chat.Token,
		Username: cfg.Chat.Username,
		IconURL:  cfg.Chat.IconURL,
	})
	if err := slackChat.Connect(ctx); err != nil {
		slog.Error("Failed to connect to Slack", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := slackChat.Close(); err != nil {
			slog.Error("Error closing Slack connection", "error", err)
		}
	}()

	// 5. 2FA adapter
	authFactory := auth.NewDuoFactory(auth.DuoConfig{
		IntegrationKey: cfg.Auth.IntegrationKey,
		SecretKey:      cfg.Auth.SecretKey,
		Host:           cfg.Auth.Host,
		AppName:        cfg.Chat.Username,
	})

	// 6. Coordinator
	coordinator, err := bot.New(bot.Options{
		Chat:             slackChat,
		Store:            taskStore,
		Ignores:          ignoreStore,
		Blacklist:        blacklist,
		AuthFactory:      authFactory,
		Messages:         cfg.Messages,
		Commands:         cfg.Commands,
		ReportingChannel: cfg.Chat.ReportingChannel,
		Location:         cfg.Location(),
		EscalationTime:   cfg.Schedule.EscalationTime.Std(),
		BackoffTime:      cfg.Schedule.BackoffTime.Std(),
		PollInterval:     cfg.Schedule.TaskPollInterval.Std(),
	})
	if err != nil {
		slog.Error("Failed to build coordinator", "error", err)
		os.Exit(1)
	}
	if err := coordinator.Bootstrap(ctx); err != nil {
		slog.Error("Failed to bootstrap coordinator", "error", err)
		os.Exit(1)
	}

	// 7. HTTP server (non-blocking)
	httpServer := api.NewServer(dbClient, coordinator, cfg.HTTPPort)
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// 8. Run the coordinator loop until shutdown
	runErr := make(chan error, 1)
	go func() {
		runErr <- coordinator.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	case err := <-runErr:
		if err != nil && err != context.Canceled {
			slog.Error("Coordinator stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Shutdown complete")
}
