// Command webhookcore runs the webhook ingest-and-projection service:
// the gin HTTP ingest endpoint (C1/C4), the Prometheus scrape route,
// and the background tick worker (C5) in the same process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/wpphooks/ingestcore/internal/config"
	"github.com/wpphooks/ingestcore/internal/database"
	"github.com/wpphooks/ingestcore/internal/dedupecache"
	"github.com/wpphooks/ingestcore/internal/ingesthttp"
	"github.com/wpphooks/ingestcore/internal/integration"
	"github.com/wpphooks/ingestcore/internal/metrics"
	"github.com/wpphooks/ingestcore/internal/middleware"
	"github.com/wpphooks/ingestcore/internal/projection/consent"
	"github.com/wpphooks/ingestcore/internal/projection/recipient"
	"github.com/wpphooks/ingestcore/internal/projection/template"
	"github.com/wpphooks/ingestcore/internal/rawstore"
	"github.com/wpphooks/ingestcore/internal/telemetry"
	"github.com/wpphooks/ingestcore/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := telemetry.DefaultLogConfig()
	logCfg.Level = telemetry.LogLevel(cfg.LogLevel)
	if err := telemetry.InitGlobalLogger(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := telemetry.WithCorrelationID(context.Background(), telemetry.NewCorrelationID())
	logger := telemetry.GetContextualLogger(ctx).WithField("component", "main")

	db, err := database.NewConnection(cfg.DB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	store := rawstore.NewMySQLStore(db.DB, cfg.PayloadPreviewChars)
	integrationRepo := integration.NewMySQLRepository()
	recipients := recipient.NewProjector()
	templates := template.NewProjector()
	consents := consent.NewProjector(cfg.UserPhoneColumn, cfg.BlockedAsOptOut)

	w := worker.New(db, store, integrationRepo, recipients, templates, consents, cfg)

	ingestHandler := ingesthttp.NewHandler(store, config.WebhookSecret, config.SecretHeaderName)
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		ingestHandler.DedupeCache = dedupecache.New(redisClient, 10*time.Minute)
	}

	router := gin.Default()
	router.Use(middleware.NewPerAppRateLimit(50, time.Second).Middleware())
	ingestHandler.Register(router)
	metrics.Register(router)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go w.Run(workerCtx)

	go func() {
		logger.Infof("Starting ingest server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server failed")
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
