// Package main is the entry point for the Hemis Student Hub portal API.
//
// The web binary serves the student portal: login against HEMIS or a
// local teacher account, academic record views, manual sync, essay
// submission with AI grading, and the chat assistants. Telegram alerts
// run in the separate bot binary (cmd/bot).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hemis-hub/hemis-student-hub/config"

	// Application layer
	"github.com/hemis-hub/hemis-student-hub/internal/application/auth"
	"github.com/hemis-hub/hemis-student-hub/internal/application/chat"
	"github.com/hemis-hub/hemis-student-hub/internal/application/grading"
	syncapp "github.com/hemis-hub/hemis-student-hub/internal/application/sync"

	// Infrastructure layer
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/gemini"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/persistence/postgres"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/hemis-hub/hemis-student-hub/internal/interface/http"

	// Packages
	"github.com/hemis-hub/hemis-student-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log, slogger := setupLoggers(cfg)
	log.Info("starting Hemis Student Hub portal",
		logger.F("env", string(cfg.App.Environment)),
		logger.F("version", cfg.App.Version),
		logger.F("addr", cfg.HTTP.Addr),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err = redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
		})
		if err != nil {
			// Sessions and the profile cache degrade to in-memory
			// and direct fetches respectively.
			log.Warn("failed to connect to Redis, degrading to in-memory stores", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	userRepo := postgres.NewUserRepository(dbConn)
	educationRepo := postgres.NewEducationRepository(dbConn)
	essayRepo := postgres.NewEssayRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	hemisConfig := hemis.DefaultClientConfig(cfg.Hemis.BaseURL)
	hemisConfig.Timeout = cfg.Hemis.RequestTimeout
	hemisConfig.RetryConfig = hemis.RetryConfig{
		MaxRetries: cfg.Hemis.MaxRetries,
		BaseDelay:  cfg.Hemis.RetryBaseDelay,
		MaxDelay:   cfg.Hemis.RetryMaxDelay,
	}
	hemisConfig.Logger = slogger
	hemisConfig.Debug = cfg.App.Debug
	hemisClient := hemis.NewClient(hemisConfig)

	// Chat and grading carry separate API keys so one quota cannot
	// starve the other.
	chatGemini := gemini.NewClient(geminiConfig(cfg, cfg.Gemini.ChatAPIKey, slogger))
	gradingGemini := gemini.NewClient(geminiConfig(cfg, cfg.Gemini.GradingAPIKey, slogger))

	// ─────────────────────────────────────────────────────────────────────────
	// 8. APPLICATION SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	tokens := syncapp.NewTokenManager(hemisClient, userRepo, log)
	synchronizer := syncapp.NewSynchronizer(tokens, hemisClient, userRepo, educationRepo, log)

	authSvc := auth.NewService(userRepo, hemisClient, synchronizer, log)

	essayGrader := grading.NewEssayGrader(gradingGemini, log)
	submissions := grading.NewSubmissionService(essayRepo, essayGrader, log)
	examGrader := grading.NewExamGrader(gradingGemini, cfg.Gemini.ExamModel, log)

	chatSvc := chat.NewService(chatGemini, educationRepo, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host, httpConfig.Port = splitAddr(cfg.HTTP.Addr, httpConfig.Port)
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout

	deps := httpserver.Dependencies{
		Auth:        authSvc,
		Users:       userRepo,
		Education:   educationRepo,
		Essays:      essayRepo,
		Tokens:      tokens,
		Sync:        synchronizer,
		Submissions: submissions,
		Chat:        chatSvc,
		Exams:       examGrader,
		Hemis:       hemisClient,
		Logger:      log,
	}
	if redisCache != nil {
		deps.Profiles = redis.NewProfileCache(redisCache, cfg.Redis.ProfileTTL, log)
		deps.Sessions = httpserver.NewRedisSessionStore(redisCache, httpConfig.SessionTTL)
	}

	server := httpserver.NewServer(httpConfig, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. RUN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", logger.F("address", server.Address()))
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("Hemis Student Hub portal is running", logger.F("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.F("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		return err
	}

	log.Info("starting graceful shutdown...", logger.F("timeout", cfg.App.ShutdownTimeout.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLoggers builds the application logger and the slog logger the
// infrastructure clients expect, both honoring the configured level.
func setupLoggers(cfg *config.Config) (*logger.Logger, *slog.Logger) {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		AddCaller: cfg.App.Debug,
	})

	slogOpts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}
	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, slogOpts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, slogOpts)
	}
	slogger := slog.New(handler)
	slog.SetDefault(slogger)

	return log, slogger
}

func slogLevel(s string) slog.Level {
	switch s {
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

// geminiConfig builds a client config for one workload key, falling
// back to the shared key when the dedicated one is empty.
func geminiConfig(cfg *config.Config, apiKey string, slogger *slog.Logger) gemini.ClientConfig {
	if apiKey == "" {
		apiKey = cfg.Gemini.APIKey
	}
	gc := gemini.DefaultClientConfig(apiKey)
	gc.BaseURL = cfg.Gemini.BaseURL
	if len(cfg.Gemini.Models) > 0 {
		gc.Models = cfg.Gemini.Models
	}
	gc.Timeout = cfg.Gemini.RequestTimeout
	gc.Logger = slogger
	return gc
}

// splitAddr parses "host:port" into its parts, tolerating the ":8080"
// shorthand. The fallback port is used when parsing fails.
func splitAddr(addr string, fallbackPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "0.0.0.0", fallbackPort
	}
	if host == "" {
		host = "0.0.0.0"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, fallbackPort
	}
	return host, port
}
