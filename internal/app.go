// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	router "slotmine/internal/api"
	"slotmine/internal/api/handler"
	"slotmine/internal/cache"
	"slotmine/internal/config"
	"slotmine/internal/notify"
	"slotmine/internal/repository"
	"slotmine/internal/repository/postgres"
	"slotmine/internal/scheduler"
	"slotmine/internal/service"
	"slotmine/internal/stats"
	"slotmine/internal/util"
	"slotmine/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB
	Cache  cache.Cache
	Hub    *notify.Hub

	// Repositories
	UserRepository     repository.UserRepository
	WalletRepository   repository.WalletRepository
	SlotRepository     repository.SlotRepository
	ActivityRepository repository.ActivityRepository

	// Services
	SlotService     service.SlotService
	ClaimService    service.ClaimService
	ExpiryProcessor *service.ExpiryProcessor
	CheckpointJob   *service.CheckpointJob
	Scheduler       *scheduler.Scheduler

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	// 2. Initialize Logger
	util.InitLogger()
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	// 3. Connect to Database
	database, err := db.NewPostgresDB(app.Config.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.DB = database
	if err := db.EnsureSchema(ctx, app.DB); err != nil {
		return fmt.Errorf("failed to ensure database schema: %w", err)
	}
	app.Logger.Info("Database connection established.")

	// 4. Initialize Cache
	if app.Config.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(app.Config.RedisURL, app.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Cache = redisCache
		app.Logger.Info("Redis cache initialized.")
	} else {
		app.Cache = cache.NewMemoryCache()
		app.Logger.Info("In-process cache initialized.")
	}

	// 5. Initialize Repositories
	app.UserRepository = postgres.NewUserRepository(app.DB)
	app.WalletRepository = postgres.NewWalletRepository(app.DB)
	app.SlotRepository = postgres.NewSlotRepository(app.DB)
	app.ActivityRepository = postgres.NewActivityRepository(app.DB)
	app.Logger.Info("Repositories initialized.")

	// 6. Notification hub and live processing stats
	app.Hub = notify.NewHub(app.Logger)
	live := stats.NewLive()

	// 7. Initialize Services
	// Pass the concrete db.BeginTx, db.CommitTx, db.RollbackTx functions from pkg/db
	app.SlotService = service.NewSlotService(
		app.DB, // This is the DBTxBeginner
		app.DB, // This is the DBExecutor
		app.UserRepository,
		app.WalletRepository,
		app.SlotRepository,
		app.ActivityRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Cache,
		app.Hub,
		app.Config.Currency,
		app.Config.CacheTTL,
	)
	app.ClaimService = service.NewClaimService(
		app.DB,
		app.SlotRepository,
		app.WalletRepository,
		app.ActivityRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Cache,
		app.Hub,
		service.ClaimConfig{
			Currency:         app.Config.Currency,
			MinClaimAmount:   app.Config.MinClaimAmount,
			LockTimeout:      app.Config.ClaimLockTimeout,
			CloseSlotOnClaim: app.Config.CloseSlotOnClaim,
		},
		app.Logger,
	)
	app.ExpiryProcessor = service.NewExpiryProcessor(
		app.DB,
		app.DB,
		app.SlotRepository,
		app.WalletRepository,
		app.ActivityRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		app.Cache,
		app.Hub,
		live,
		service.ExpiryConfig{
			Currency:     app.Config.Currency,
			BatchSize:    app.Config.ExpiryBatchSize,
			BatchTimeout: app.Config.ExpiryBatchTimeout,
			SoonWindow:   app.Config.ExpirySoonWindow,
		},
		app.Logger,
	)
	app.CheckpointJob = service.NewCheckpointJob(
		app.DB,
		app.SlotRepository,
		db.BeginTx,
		db.CommitTx,
		db.RollbackTx,
		service.CheckpointConfig{
			BatchSize: app.Config.CheckpointBatchSize,
			Threshold: app.Config.CheckpointThreshold,
		},
		app.Logger,
	)
	app.Logger.Info("Services initialized.")

	// 8. Background jobs
	app.Scheduler = scheduler.New(app.ExpiryProcessor, app.CheckpointJob, app.Logger)
	if err := app.Scheduler.Start(app.Config.ExpiryInterval, app.Config.CheckpointInterval); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 9. Initialize HTTP Handlers and Router
	slotHandler := handler.NewSlotHandler(app.SlotService, app.ClaimService, app.Logger)
	adminHandler := handler.NewAdminHandler(app.ExpiryProcessor, app.Logger)
	app.HTTPHandler = router.NewRouter(slotHandler, adminHandler, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.Scheduler != nil {
		app.Scheduler.Stop()
	}
	if app.Hub != nil {
		app.Hub.Close()
	}
	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			app.Logger.Error("Failed to close cache", "error", err)
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database connection", "error", err)
			return fmt.Errorf("failed to close database connection: %w", err)
		}
		app.Logger.Info("Database connection closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
