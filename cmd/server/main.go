package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nebulosa/api/internal/client"
	"github.com/nebulosa/api/internal/config"
	"github.com/nebulosa/api/internal/handler"
	"github.com/nebulosa/api/internal/middleware"
	"github.com/nebulosa/api/internal/service"
	"github.com/nebulosa/api/internal/stream"
	"github.com/nebulosa/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize the stream broker
	broker := stream.NewBroker()

	// Initialize Gemini client (optional - the pipeline reports the
	// configuration error as a terminal event when it is missing)
	var analyzer client.DocumentAnalyzer
	geminiClient, err := client.NewGeminiClient(ctx, &cfg.Gemini)
	if err != nil {
		log.Printf("Warning: Gemini client not initialized: %v", err)
	} else {
		analyzer = geminiClient
	}

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, document archiving disabled")
	}

	// Initialize services
	analyzeService := service.NewAnalyzeService(redisClient, asynqClient)
	queryService := service.NewQueryService(analyzer)

	// Initialize handlers
	analyzeHandler := handler.NewAnalyzeHandler(analyzeService, validate)
	queryHandler := handler.NewQueryHandler(queryService, validate)
	streamHandler := handler.NewStreamHandler(broker)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    52 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigin,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"gemini": analyzer != nil,
				"redis":  redisClient.Ping(c.Context()).Err() == nil,
				"r2":     storage != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")
	api.Get("/stream", streamHandler.Events)
	api.Post("/process", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), analyzeHandler.Process)
	api.Get("/status/:jobId", analyzeHandler.Status)
	api.Post("/query", rateLimiter.QueryLimit(cfg.RateLimit.QueryPerMin), queryHandler.Ask)

	// Start Asynq worker server
	go startWorkerServer(cfg, analyzeService, analyzer, storage, broker)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	analyzeService *service.AnalyzeService,
	analyzer client.DocumentAnalyzer,
	storage client.StorageClient,
	broker *stream.Broker,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	// Concurrency 1: the stream carries a single active job, so
	// pipelines must run one at a time.
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				service.QueueAnalyze: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)

	analyzeWorker := worker.NewAnalyzeWorker(analyzeService, analyzer, storage, broker)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAnalyze, analyzeWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
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
		"code":    "INTERNAL_SERVER_ERROR",
		"error":   message,
		"details": "An unexpected error occurred on the server.",
	})
}
