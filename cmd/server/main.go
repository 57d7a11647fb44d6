package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/pollinator/api/internal/client"
	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/handler"
	"github.com/pollinator/api/internal/middleware"
	"github.com/pollinator/api/internal/publisher"
	"github.com/pollinator/api/internal/queue"
	"github.com/pollinator/api/internal/service"
	"github.com/pollinator/api/internal/store"
	ws "github.com/pollinator/api/internal/websocket"
	"github.com/pollinator/api/internal/worker"
	"github.com/pollinator/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Status transport
	var (
		statusPublisher  publisher.Publisher
		statusSubscriber publisher.Subscriber
	)
	switch cfg.Status.Transport {
	case config.TransportNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("pollinator-api"))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Drain()
		statusPublisher = publisher.NewNATSPublisher(nc, cfg.Status.Topic)
		statusSubscriber = publisher.NewNATSSubscriber(nc, cfg.Status.Topic)
	default:
		statusPublisher = publisher.NewRedisPublisher(redisClient, cfg.Status.Topic)
		statusSubscriber = publisher.NewRedisSubscriber(redisClient, cfg.Status.Topic)
	}

	// Initialize external clients
	storageClient, err := client.NewS3Client(ctx, &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}
	visionClient := client.NewVisionClient(&cfg.OCR)
	pollyClient, err := client.NewPollyClient(ctx, &cfg.TTS)
	if err != nil {
		log.Fatalf("Failed to initialize speech synthesis: %v", err)
	}

	jobStore := store.NewRedisStore(redisClient, cfg.Store.TableName)
	dispatcher := queue.NewAsynqDispatcher(asynqClient, &cfg.Queue, cfg.Pipeline.TaskTimeout)

	// Initialize WebSocket hub, fed by the status topic
	hub := ws.NewHub()
	go hub.Run()
	go func() {
		if err := statusSubscriber.Subscribe(ctx, hub.Relay); err != nil {
			log.Printf("Status subscription ended: %v", err)
		}
	}()

	// Initialize services
	jobService := service.NewJobService(jobStore, statusPublisher, dispatcher, storageClient, validator.New(), cfg)
	stuckJobs := service.NewStuckJobWatcher(jobStore, statusPublisher, &cfg.Pipeline)
	go stuckJobs.Run(ctx)

	jobHandler := handler.NewJobHandler(jobService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":     redisClient.Ping(c.UserContext()).Err() == nil,
				"storage":   storageClient.IsConfigured(),
				"ocr":       visionClient.IsConfigured(),
				"transport": cfg.Status.Transport,
			},
		})
	})

	// Job routes
	jobs := app.Group("/jobs")
	jobs.Post("/", rateLimiter.CreateJobLimit(cfg.RateLimit.CreatePerMin), jobHandler.Create)
	jobs.Get("/", jobHandler.List)
	jobs.Get("/:jobId", jobHandler.Get)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	// Start Asynq worker server
	srv := newWorkerServer(cfg, redisOpt)
	textWorker := worker.NewTextExtractionWorker(jobStore, storageClient, visionClient, dispatcher, statusPublisher)
	speechWorker := worker.NewSpeechSynthesisWorker(jobStore, storageClient, pollyClient, statusPublisher)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.StageTextExtraction.TaskType(), textWorker.ProcessTask)
	mux.HandleFunc(queue.StageSpeechSynthesis.TaskType(), speechWorker.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		srv.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			cfg.Queue.TextExtraction:  5,
			cfg.Queue.SpeechSynthesis: 5,
		},
		LogLevel: asynqLogLevel,
	})
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
