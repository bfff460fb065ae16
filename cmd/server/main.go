package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"taskboard/internal/cache"
	"taskboard/internal/config"
	"taskboard/internal/controller"
	"taskboard/internal/database"
	"taskboard/internal/queue"
	"taskboard/internal/repository"
	"taskboard/internal/routes"
	"taskboard/internal/worker"
	"taskboard/pkg/logger"
)

func main() {
	// Existing environment wins over .env.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	// Initialize DB pool (required for handlers and the cache warmer)
	db := database.InitDB(ctx)
	if db == nil {
		logger.Error(ctx, "Database not available; exiting")
		os.Exit(1)
	}
	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		logger.Error(ctx, "Schema migration failed", "error", err)
		os.Exit(1)
	}
	repo := repository.New(db)

	// Redis is optional; a nil client degrades to database reads
	lists := cache.New(cache.Client(ctx), cfg.CacheTTLDuration())

	queue.EnsureTopic(ctx)
	events := queue.NewPublisher(queue.Producer(ctx))

	go func() {
		if err := worker.Run(ctx, worker.NewWarmer(repo, lists)); err != nil {
			logger.Error(ctx, "Worker stopped", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      routes.Router(controller.New(repo, lists, events), cfg.JWTSecret),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info(ctx, "HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info(context.Background(), "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Server shutdown error", "error", err)
	}
	if err := queue.Producer(shutdownCtx).Close(); err != nil {
		logger.Error(shutdownCtx, "Kafka producer close error", "error", err)
	}
	logger.Info(shutdownCtx, "Server stopped")
}
