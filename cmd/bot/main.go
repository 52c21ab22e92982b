// Package main is the entry point for the Hemis Student Hub Telegram bot.
//
// The bot binary runs the alerting half of the system: it links Telegram
// chats to portal accounts, keeps academic records synced, and pushes
// deadline and absence alerts on a fixed scan interval. The portal HTTP
// API lives in a separate binary (cmd/web).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hemis-hub/hemis-student-hub/config"

	// Application layer
	"github.com/hemis-hub/hemis-student-hub/internal/application/notifier"
	syncapp "github.com/hemis-hub/hemis-student-hub/internal/application/sync"

	// Domain layer
	"github.com/hemis-hub/hemis-student-hub/internal/domain/notification"
	"github.com/hemis-hub/hemis-student-hub/internal/domain/user"

	// Infrastructure layer
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/hemis"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/external/telegram"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/persistence/postgres"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/persistence/redis"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/scheduler"
	"github.com/hemis-hub/hemis-student-hub/internal/infrastructure/scheduler/jobs"

	// Interface layer
	tgbot "github.com/hemis-hub/hemis-student-hub/internal/interface/telegram"

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
	_ = godotenv.Load() // .env is optional, real deployments use the environment

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log, slogger := setupLoggers(cfg)
	log.Info("starting Hemis Student Hub bot",
		logger.F("env", string(cfg.App.Environment)),
		logger.F("version", cfg.App.Version),
		logger.F("timezone", cfg.App.Timezone),
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

	if applied, err := migrator.GetAppliedMigrations(ctx); err != nil {
		log.Warn("failed to read migration status", logger.Err(err))
	} else {
		log.Info("migrations completed", logger.F("applied", len(applied)))
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
			// Redis only backs the link-flow dialog state, the bot
			// works without it.
			log.Warn("failed to connect to Redis, using in-memory state", logger.Err(err))
			redisCache = nil
		} else {
			defer redisCache.Close()
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	userRepo := postgres.NewUserRepository(dbConn)
	educationRepo := postgres.NewEducationRepository(dbConn)
	essayRepo := postgres.NewEssayRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing external clients...")

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

	telegramConfig := telegram.DefaultClientConfig(cfg.Telegram.Token)
	telegramConfig.PollingTimeout = int(cfg.Telegram.PollingTimeout.Seconds())
	telegramConfig.ReconnectDelay = cfg.Telegram.ReconnectDelay
	telegramConfig.Logger = slogger
	telegramClient := telegram.NewClient(telegramConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SYNC PIPELINE
	// ─────────────────────────────────────────────────────────────────────────
	tokens := syncapp.NewTokenManager(hemisClient, userRepo, log)
	synchronizer := syncapp.NewSynchronizer(tokens, hemisClient, userRepo, educationRepo, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. NOTIFICATION ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing notification engine...")

	// Memory layer answers repeat checks within the process; the
	// postgres layer survives restarts.
	ledger := notification.Layered(
		notification.NewMemoryLedger(),
		postgres.NewNotificationLedger(dbConn),
	)
	messenger := telegram.NewNotifier(telegramClient, cfg.Telegram.ParseMode)

	engine := notifier.NewEngine(userRepo, essayRepo, educationRepo, ledger, messenger, notifier.Config{
		DeadlineLookahead: cfg.Scheduler.DeadlineLookahead,
		AbsenceThreshold:  cfg.Scheduler.AbsenceThreshold,
	}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:     slogger,
		Timezone:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	if cfg.Scheduler.Enabled {
		schedule := scheduler.NewIntervalSchedule(cfg.Scheduler.ScanInterval)
		puller := &recordPuller{sync: synchronizer}
		if err := sched.Register(jobs.NewSyncRecordsJob(userRepo, puller, log), schedule); err != nil {
			return fmt.Errorf("failed to register sync job: %w", err)
		}
		if err := sched.Register(jobs.NewCheckDeadlinesJob(engine), schedule); err != nil {
			return fmt.Errorf("failed to register deadline job: %w", err)
		}
		if err := sched.Register(jobs.NewCheckAbsencesJob(engine), schedule); err != nil {
			return fmt.Errorf("failed to register absence job: %w", err)
		}
		log.Info("scheduler jobs registered", logger.F("interval", cfg.Scheduler.ScanInterval.String()))
	} else {
		log.Warn("scheduler disabled, no alerts will be sent")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 11. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing Telegram bot...")

	var flows tgbot.FlowStore
	if redisCache != nil {
		flows = tgbot.NewRedisFlowStore(redisCache)
	}

	bot, err := tgbot.NewBot(telegramClient, hemisClient, userRepo, flows, log)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. RUN
	// ─────────────────────────────────────────────────────────────────────────
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 1)

	if cfg.Scheduler.Enabled {
		if err := sched.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		log.Info("starting Telegram bot long polling...")
		if err := bot.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telegram bot error: %w", err)
		}
	}()

	log.Info("Hemis Student Hub bot is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 13. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.F("signal", sig.String()))
	case err := <-errCh:
		log.Error("service error", logger.Err(err))
		stop()
		return err
	}

	log.Info("starting graceful shutdown...", logger.F("timeout", cfg.App.ShutdownTimeout.String()))
	stop()

	if cfg.Scheduler.Enabled {
		if err := sched.Stop(); err != nil {
			log.Error("failed to stop scheduler gracefully", logger.Err(err))
		}
	}

	// Redis and the database close through defers.
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

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// recordPuller adapts the synchronizer to the sync job, which does not
// care about the per-category counts.
type recordPuller struct {
	sync *syncapp.Synchronizer
}

func (p *recordPuller) SyncUser(ctx context.Context, u *user.User) error {
	_, err := p.sync.Sync(ctx, u)
	return err
}
