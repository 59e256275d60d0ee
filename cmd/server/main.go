package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gurubase/gurubase-go/internal/answers"
	"github.com/gurubase/gurubase-go/internal/api"
	"github.com/gurubase/gurubase-go/internal/api/handlers"
	"github.com/gurubase/gurubase-go/internal/config"
	"github.com/gurubase/gurubase-go/internal/database"
	"github.com/gurubase/gurubase-go/internal/events"
	"github.com/gurubase/gurubase-go/internal/health"
	"github.com/gurubase/gurubase-go/internal/integrations"
	"github.com/gurubase/gurubase-go/internal/repository"
	"github.com/gurubase/gurubase-go/internal/services"
	"github.com/gurubase/gurubase-go/pkg/utils"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	logger := utils.GetLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.ValidateAnswers(); err != nil {
		logger.WithError(err).Fatal("Answer pipeline configuration validation failed")
	}

	// Initialize database and cache
	dbManager, err := database.NewManager(&database.Config{
		DatabaseURL: cfg.Database.URL,
		RedisURL:    cfg.Redis.URL,
		LogLevel:    os.Getenv("LOG_LEVEL"),
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database manager")
	}
	defer dbManager.Close()

	if err := dbManager.Migrate(); err != nil {
		logger.WithError(err).Fatal("Database migration failed")
	}

	cache := database.NewCache(dbManager.Redis, logger)
	repoManager := repository.NewRepositoryManager(dbManager.DB)

	// Services
	generator := answers.NewClient(cfg.Answers.BaseURL, cfg.Answers.APIKey, logger)
	graph := services.NewGraphService(
		repoManager.Question,
		repoManager.Binge,
		repoManager.Thread,
		repoManager.GuruType,
		repoManager.DataSource,
		cfg,
		logger,
	)
	ask := services.NewAskService(graph, repoManager.Question, generator, cfg, logger)
	registry := integrations.NewRegistry(cfg, logger)
	dispatcher := events.NewDispatcher(cfg, cache, repoManager.Integration, repoManager.GuruType, registry, graph, ask, logger)
	checker := health.NewHealthChecker(dbManager, generator, logger)

	// HTTP layer
	router := api.NewRouter(api.Handlers{
		Ask:         handlers.NewAskHandler(ask, graph, generator, repoManager, cfg, logger),
		Binge:       handlers.NewBingeHandler(graph, repoManager, cfg, logger),
		Question:    handlers.NewQuestionHandler(graph, repoManager, logger),
		Integration: handlers.NewIntegrationHandler(registry, repoManager, cache, logger),
		Webhook:     handlers.NewWebhookHandler(dispatcher, logger),
		APIKey:      handlers.NewAPIKeyHandler(repoManager, logger),
		Health:      handlers.NewHealthHandler(checker),
	}, repoManager, 120)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
		// Streaming answers hold the connection open for the whole
		// generation, so no write timeout.
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
	logger.Info("Server stopped")
}
