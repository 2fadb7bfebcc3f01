package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/config"
	"github.com/ballotbase/api/internal/handler"
	"github.com/ballotbase/api/internal/ingest"
	"github.com/ballotbase/api/internal/mail"
	"github.com/ballotbase/api/internal/middleware"
	"github.com/ballotbase/api/internal/pipeline"
	"github.com/ballotbase/api/internal/service"
	"github.com/ballotbase/api/internal/store"
	"github.com/ballotbase/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(&cfg.Server)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Postgres job store
	db, err := store.New(&cfg.Postgres)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	if err := db.Initialize(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", zap.Error(err))
	}

	// Initialize validator
	validate := validator.New()

	// Initialize external clients
	inferenceClient := client.NewInferenceClient(&cfg.Inference)

	var notifier mail.Service
	if cfg.Email.SendGridAPIKey != "" {
		notifier = mail.NewSendGridClient(&cfg.Email, logger)
	} else {
		logger.Info("sendgrid not configured, notifications disabled")
	}

	// Initialize services
	ingestService := ingest.NewService(db, logger)
	orchestrator := pipeline.New(db, inferenceClient, ingestService, notifier,
		redisClient, pipeline.ConfigFromApp(cfg), logger)
	batchService := service.NewBatchService(db, inferenceClient, cfg.Inference.Model, logger)

	// Initialize handlers
	pipelineHandler := handler.NewPipelineHandler(orchestrator, cfg, logger)
	batchHandler := handler.NewBatchHandler(batchService, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB of raw rows per submission
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Internal-Token",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		ready, _ := cfg.InferenceReady()
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"inference": inferenceClient.IsConfigured(),
				"pipeline":  ready,
				"email":     notifier != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	batches := api.Group("/batches")
	batches.Post("/", rateLimiter.SubmitLimit(cfg.Pipeline.SubmitsPerHour), batchHandler.Submit)
	batches.Get("/", batchHandler.List)
	batches.Get("/:jobId", batchHandler.Get)

	pipelineRoutes := api.Group("/pipeline", middleware.InternalAuth(cfg.Pipeline.InternalToken))
	pipelineRoutes.Post("/run", pipelineHandler.Run)
	pipelineRoutes.Get("/run", pipelineHandler.Probe)

	// Start Asynq worker server and periodic scheduler
	go startWorkerServer(cfg, orchestrator, logger)
	go startScheduler(cfg, logger)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	logger.Info("server starting", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(cfg *config.ServerConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Env == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func startWorkerServer(cfg *config.Config, orchestrator *pipeline.Orchestrator, logger *zap.Logger) {
	srv := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			// One sweep at a time; the orchestrator assumes a single
			// invocation and the run lock backs that up.
			Concurrency: 1,
			Queues: map[string]int{
				"pipeline": 1,
			},
			LogLevel: asynqLogLevel(cfg.Server.LogLevel),
		},
	)

	pipelineWorker := worker.NewPipelineWorker(orchestrator, cfg, logger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypePipelineTick, pipelineWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		logger.Error("asynq worker error", zap.Error(err))
	}
}

func startScheduler(cfg *config.Config, logger *zap.Logger) {
	scheduler := asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{})

	spec := fmt.Sprintf("@every %s", cfg.Pipeline.TickInterval)
	_, err := scheduler.Register(spec, worker.NewTickTask(),
		asynq.Queue("pipeline"),
		asynq.Unique(cfg.Pipeline.TickInterval))
	if err != nil {
		logger.Error("failed to register pipeline tick", zap.Error(err))
		return
	}

	if err := scheduler.Run(); err != nil {
		logger.Error("asynq scheduler error", zap.Error(err))
	}
}

func asynqLogLevel(level string) asynq.LogLevel {
	switch {
	case strings.EqualFold(level, "debug"):
		return asynq.DebugLevel
	case strings.EqualFold(level, "warn"):
		return asynq.WarnLevel
	case strings.EqualFold(level, "error"):
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
