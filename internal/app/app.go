package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	redisadapter "github.com/nutricoach/server/internal/adapter/redis"
	"github.com/nutricoach/server/internal/adapter/s3"
	"github.com/nutricoach/server/internal/module/ai"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/module/mealgroup"
	"github.com/nutricoach/server/internal/module/report"
	"github.com/nutricoach/server/internal/module/summary"
	"github.com/nutricoach/server/internal/module/task"
	"github.com/nutricoach/server/internal/shared/config"
	"github.com/nutricoach/server/internal/shared/database"
	"github.com/nutricoach/server/internal/shared/logger"
	"github.com/nutricoach/server/internal/utils/metrics"
	"github.com/nutricoach/server/internal/utils/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App represents the application.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     *redis.Client
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	// Task subsystem
	taskManager *task.Manager
	taskHub     *task.Hub

	// Module handlers
	clientHandler    *client.Handler
	mealGroupHandler *mealgroup.Handler
	reportHandler    *report.Handler
	summaryHandler   *summary.Handler
	taskHandler      *task.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New("nutricoach"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := app.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// Redis is optional; rate limiting fails open without it.
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis unavailable, rate limiting disabled", logger.Err(err))
		} else {
			app.redis = rdb
		}
	}

	app.router = app.setupRouter()

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	// Tasks left RUNNING by a previous process cannot still be
	// executing; park them as paused so their checkpoints stay usable.
	if err := app.taskManager.RecoverInterrupted(context.Background()); err != nil {
		return nil, fmt.Errorf("recover interrupted tasks: %w", err)
	}

	app.registerRoutes()

	return app, nil
}

// migrate runs schema migrations for all modules.
func (a *App) migrate() error {
	if err := a.db.AutoMigrate(
		&client.Client{},
		&mealgroup.MealGroup{},
		&mealgroup.ExerciseLog{},
		&report.HealthReport{},
		&summary.WeeklySummary{},
		&summary.MealGroupAnalysis{},
		&summary.Recommendation{},
	); err != nil {
		return err
	}
	return task.Migrate(a.db)
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// initModules initializes all application modules.
func (a *App) initModules() error {
	clientRepo := client.NewRepository(a.db)
	groupRepo := mealgroup.NewRepository(a.db)
	reportRepo := report.NewRepository(a.db)
	summaryRepo := summary.NewRepository(a.db)
	taskRepo := task.NewRepository(a.db)

	// Inference client with retry and circuit breaking.
	var inference ai.Client = ai.NewHTTPClient(&a.config.AI)
	inference = ai.NewResilientClient(inference, &a.config.AI, a.zapLogger, a.metrics)

	a.taskManager = task.NewManager(taskRepo, a.zapLogger)
	a.taskHub = task.NewHub()

	executor := task.NewExecutor(
		taskRepo,
		a.taskManager,
		inference,
		clientRepo,
		groupRepo,
		reportRepo,
		summaryRepo,
		a.zapLogger,
		a.metrics,
	)
	gateway := task.NewGateway(
		a.taskManager,
		executor,
		a.taskHub,
		clientRepo,
		a.config.Task.HeartbeatInterval,
		a.zapLogger,
		a.metrics,
	)

	a.clientHandler = client.NewHandler(clientRepo)
	a.mealGroupHandler = mealgroup.NewHandler(groupRepo, clientRepo)
	a.summaryHandler = summary.NewHandler(summaryRepo, clientRepo)
	a.taskHandler = task.NewHandler(a.taskManager, executor, gateway, clientRepo)

	// Report uploads need object storage; without it the module stays
	// read-only for rows written by earlier deployments.
	if a.config.Storage.Endpoint != "" && a.config.Storage.Bucket != "" {
		storage, err := s3.New(context.Background(), &a.config.Storage)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		a.reportHandler = report.NewHandler(reportRepo, clientRepo, storage)
	} else {
		a.logger.Warn("object storage not configured, report uploads disabled")
	}

	return nil
}

// registerRoutes registers routes for all modules.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	protected := v1.Group("")
	protected.Use(middleware.Auth(a.config.Auth.JWTSecret))

	a.clientHandler.RegisterRoutes(protected)
	a.mealGroupHandler.RegisterRoutes(protected)
	a.summaryHandler.RegisterRoutes(protected)
	if a.reportHandler != nil {
		a.reportHandler.RegisterRoutes(protected)
	}
	a.taskHandler.RegisterRoutes(protected, a.taskCreateLimit())
}

// taskCreateLimit builds the per-coach rate limit for task creation.
// Returns nil when Redis is not available.
func (a *App) taskCreateLimit() gin.HandlerFunc {
	if a.redis == nil {
		return nil
	}
	limiter := redisadapter.NewRateLimiter(a.redis)
	cfg := middleware.DefaultRateLimitConfig()
	if a.config.Task.CreateRateLimit > 0 {
		cfg.Limit = a.config.Task.CreateRateLimit
	}
	if a.config.Task.CreateRateWindow > 0 {
		cfg.Window = a.config.Task.CreateRateWindow
	}
	return middleware.RateLimit(limiter, cfg)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop stops the application and releases resources.
func (a *App) Stop() {
	if a.zapLogger != nil {
		_ = a.zapLogger.Sync()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
