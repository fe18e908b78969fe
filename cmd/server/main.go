package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/app"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/database"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/logger"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/rabbitmq"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/routes"
)

func main() {
	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := database.Connect(&cfg.Database, logger.Named("database"))
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger.Named("database")); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := database.RunMigrations(&cfg.Database, logger.Named("database")); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// The fast-path broker is optional; without it delivery runs on the
	// scheduler sweep alone.
	var rmq *rabbitmq.Connection
	if cfg.RabbitMQ.Enabled {
		rmq = rabbitmq.NewConnection(&cfg.RabbitMQ, logger.Named("rabbitmq"))
		if err := rmq.Connect(); err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rmq.Close()
	}

	application, err := app.New(cfg, db, rmq, logger.Named("app"))
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}
	if err := application.Start(); err != nil {
		logger.Fatal("Failed to start background loops", zap.Error(err))
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:      "GA4 Tagging Gateway",
		ServerHeader: "Fiber",
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.Security.AllowedOrigins),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Encrypted",
	}))

	routes.SetupRoutes(fiberApp, application.Events, application.Queue, application.Health)

	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		logger.Info("Server starting",
			zap.String("address", addr),
			zap.Bool("fast_path", cfg.RabbitMQ.Enabled),
		)
		if err := fiberApp.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	if err := fiberApp.Shutdown(); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	application.Stop()
	logger.Info("Server stopped")
}

func corsOrigins(allowed []string) string {
	if len(allowed) == 0 {
		return "*"
	}
	return strings.Join(allowed, ",")
}
