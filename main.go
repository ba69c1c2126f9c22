package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"databender/config"
	"databender/middleware"
	"databender/routes"
	"databender/utils"
	"databender/worker"
)

func main() {
	logger := log.New(os.Stdout, "SERVER: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Structured logger for the service layer
	svcLogger := logrus.New()
	svcLogger.SetFormatter(&logrus.JSONFormatter{})
	if config.AppConfig.Environment == "development" {
		svcLogger.SetLevel(logrus.DebugLevel)
	}

	// Background task queue for fire-and-forget work submitted by handlers
	tasks := worker.NewTaskQueue(4, 1024)

	// Mailer and sequence processor
	mailer := utils.NewSMTPMailer(config.AppConfig.SMTP, config.AppConfig.FromEmail, config.AppConfig.FromName)
	processor := utils.NewSequenceProcessor(config.DB, svcLogger, mailer)
	leads := utils.NewLeadService(config.DB, svcLogger)
	tracker := utils.NewSessionTracker(config.DB, svcLogger, time.Duration(config.AppConfig.SessionIdleMinutes)*time.Minute)

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	// Setup routes
	controllers := routes.SetupRoutes(app, config.DB, svcLogger, tasks, processor, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Daily sequence worker publishes batch results to websocket subscribers
	sequenceWorker := worker.NewSequenceWorker(processor, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags), config.AppConfig.SequenceSendHour, controllers.Sequences.PublishResult)
	go sequenceWorker.Start(ctx)

	sessionWorker := worker.NewSessionWorker(tracker, log.New(os.Stdout, "SESSION: ", log.LstdFlags))
	go sessionWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(processor, leads, log.New(os.Stdout, "REPLY: ", log.LstdFlags), config.AppConfig.IMAP)
	go replyWorker.Start(ctx)

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Println("Shutdown signal received, draining...")
		cancel()

		drainCtx, drainCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer drainCancel()
		tasks.Shutdown(drainCtx)

		if err := app.Shutdown(); err != nil {
			logger.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
