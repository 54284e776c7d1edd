package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"devicegate/config"
	"devicegate/internal/events"
	"devicegate/internal/handlers"
	"devicegate/internal/kv"
	"devicegate/internal/kv/dynamo"
	"devicegate/internal/kv/memory"
	"devicegate/internal/kv/postgres"
	"devicegate/internal/middleware"
	"devicegate/internal/routes"
	"devicegate/internal/services"
	workers "devicegate/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to the configured store
	store, cleanup, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer cleanup()

	log.Printf("Using %s store", cfg.StoreDriver)

	// Initialize services
	userService := services.NewUserService(store, cfg)
	logService := services.NewLogService(store, cfg)
	authService := services.NewAuthService(store, logService, cfg)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:       "devicegate",
		CaseSensitive: true,
		StrictRouting: false,
		ServerHeader:  "devicegate",
		ErrorHandler:  customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf("PANIC RECOVERED: %v", e)
			log.Printf("Request: %s %s", c.Method(), c.Path())
			log.Printf("Stack Trace:\n%s", string(debug.Stack()))
		},
	}))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} (${latency})\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	// Setup RabbitMQ event fan-out
	if cfg.RabbitMQURL != "" {
		if err := events.Setup(cfg.RabbitMQURL); err != nil {
			// Graceful degradation: the gateway serves without events
			log.Printf("Failed to connect to RabbitMQ: %v", err)
		} else {
			authService.SetEventPublisher(events.NewPublisher())

			// Context for worker cancellation
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				alertWorker := workers.NewAlertWorker()
				if err := alertWorker.StartWorker(ctx); err != nil {
					log.Printf("Alert worker failed: %v", err)
				}
			}()

			defer events.Close()
		}
	}

	// Setup routes
	userHandler := handlers.NewUserHandler(userService)
	authHandler := handlers.NewAuthHandler(authService)
	logHandler := handlers.NewLogHandler(logService)
	routes.SetupRoutes(app, cfg, userHandler, authHandler, logHandler)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Error shutting down: %v", err)
		}
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Environment: %s", cfg.Env)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// openStore builds the kv.Store selected by STORE_DRIVER. The returned
// cleanup is a no-op for drivers without a connection to close.
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := dynamo.New(client, map[string]dynamo.KeySchema{
			cfg.UsersTable:        {PartitionAttr: "userId"},
			cfg.AuthLogsTable:     {PartitionAttr: "userId", SortAttr: "timestamp"},
			cfg.ActivityLogsTable: {PartitionAttr: "userId", SortAttr: "timestamp"},
		})
		return store, func() {}, nil

	case config.DriverPostgres:
		store, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	case config.DriverMemory:
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func customErrorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	if code == fiber.StatusInternalServerError {
		log.Printf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(code).JSON(fiber.Map{
			"message": "Internal server error",
		})
	}
	return c.Status(code).JSON(fiber.Map{
		"message": err.Error(),
	})
}
