// Package setup bootstraps the application dependencies: configuration,
// logging, the storage backend, and the shared cooldown store.
package setup

import (
	"context"
	"fmt"
	"log"

	"github.com/guardbot-dev/guardbot/internal/antispam"
	"github.com/guardbot-dev/guardbot/internal/database"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"github.com/guardbot-dev/guardbot/internal/redis"
	"github.com/guardbot-dev/guardbot/internal/setup/config"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config          // Application configuration
	Logger       *zap.Logger             // Main application logger
	DBLogger     *zap.Logger             // Database-specific logger
	Store        kv.Store                // Guild document storage
	Cooldowns    antispam.CooldownStore  // Notification cooldown slots
	DB           *database.Client        // Database connection pool, nil unless storage is postgres
	RedisManager *redis.Manager          // Redis connection manager, nil unless Redis is configured
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logger, dbLogger, err := SetupLogging(logDir, cfg.Bot.Debug.LogLevel, cfg.Bot.Debug.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DBLogger: dbLogger,
	}

	if err := app.initStorage(ctx); err != nil {
		return nil, err
	}

	if err := app.initCooldowns(); err != nil {
		return nil, err
	}

	return app, nil
}

// initStorage selects and connects the guild document backend.
func (s *App) initStorage(ctx context.Context) error {
	switch s.Config.Bot.Storage {
	case config.StorageMemory:
		s.Store = kv.NewMemoryStore()
		s.Logger.Warn("Using in-memory storage; guild policies and flags will not survive restarts")
	case config.StorageRedis:
		s.RedisManager = redis.NewManager(&s.Config.Bot.Redis, s.Logger)

		client, err := s.RedisManager.GetClient(redis.StorageDBIndex)
		if err != nil {
			return err
		}

		s.Store = kv.NewRedisStore(client, s.Logger)
	case config.StoragePostgres:
		db, err := database.NewConnection(ctx, &s.Config.Bot.PostgreSQL, s.DBLogger)
		if err != nil {
			return err
		}

		s.DB = db
		s.Store = kv.NewPostgresStore(db)
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownStorageBackend, s.Config.Bot.Storage)
	}

	return nil
}

// initCooldowns wires the notification cooldown store. Redis-backed slots
// are shared across instances; without Redis they stay process-local.
func (s *App) initCooldowns() error {
	if s.Config.Bot.Redis.Host == "" {
		s.Cooldowns = antispam.NewMemoryCooldown(antispam.SystemClock())
		return nil
	}

	if s.RedisManager == nil {
		s.RedisManager = redis.NewManager(&s.Config.Bot.Redis, s.Logger)
	}

	client, err := s.RedisManager.GetClient(redis.CooldownDBIndex)
	if err != nil {
		return err
	}

	s.Cooldowns = antispam.NewRedisCooldown(client)

	return nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(_ context.Context) {
	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}

	// Close Redis connections last as other components might need it during cleanup
	if s.RedisManager != nil {
		s.RedisManager.Close()
	}
}
