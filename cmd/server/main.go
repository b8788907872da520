package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	handlers "github.com/wekeepgrowing/storybook/internal/adapter/handler/http"
	"github.com/wekeepgrowing/storybook/internal/config"
	domainCache "github.com/wekeepgrowing/storybook/internal/domain/cache"
	"github.com/wekeepgrowing/storybook/internal/domain/generator"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/cache"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/database"
	infraGenerator "github.com/wekeepgrowing/storybook/internal/infrastructure/generator"
	grpcServer "github.com/wekeepgrowing/storybook/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/storybook/internal/infrastructure/http"
	providerFactory "github.com/wekeepgrowing/storybook/internal/infrastructure/provider"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/ratelimit"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/storage"
	"github.com/wekeepgrowing/storybook/internal/infrastructure/telemetry"
	"github.com/wekeepgrowing/storybook/internal/usecase"
	"github.com/wekeepgrowing/storybook/pkg/logger"
	"github.com/wekeepgrowing/storybook/pkg/messaging"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	zapLogger, err := logger.NewZapLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, cfg.Service, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, zapLogger); err != nil {
			zapLogger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	if err := database.Migrate(db, zapLogger); err != nil {
		zapLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	repos := database.NewRepositories(db, zapLogger)

	// Redis backs the balance cache, balance events and the shared limiter.
	var (
		redisClient  redis.UniversalClient
		balanceCache domainCache.BalanceCache = domainCache.Nop{}
		publisher    messaging.Publisher      = messaging.NopPublisher{}
	)
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(cfg.Redis, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		redisClient = client
		balanceCache = cache.NewRedisBalanceCache(client, cfg.Redis.BalanceTTL, zapLogger)
		publisher = messaging.NewRedisPublisher(client)
	}

	limiter, err := ratelimit.New(cfg.RateLimit, redisClient)
	if err != nil {
		zapLogger.Fatal("Failed to create rate limiter", zap.Error(err))
	}

	factory := providerFactory.NewFactory(cfg, zapLogger)
	verifier, err := factory.GetVerifier(provider.ProviderTypePayPal)
	if err != nil {
		zapLogger.Fatal("Failed to create payment verifier", zap.Error(err))
	}

	catalog, err := usecase.NewCatalogService(cfg.Catalog)
	if err != nil {
		zapLogger.Fatal("Invalid package catalog", zap.Error(err))
	}
	settings, err := usecase.NewPaymentSettings(cfg.Payment)
	if err != nil {
		zapLogger.Fatal("Invalid payment settings", zap.Error(err))
	}

	notifier := usecase.NewBalanceNotifier(balanceCache, publisher, zapLogger)
	credits := usecase.NewCreditService(repos.Credits, balanceCache, notifier, zapLogger)
	audit := usecase.NewAuditSink(repos.Audit, zapLogger)
	payments := usecase.NewPaymentService(verifier, catalog, repos.Transactions, credits, audit, settings, zapLogger)
	recovery := usecase.NewRecoveryService(repos.Credits, notifier, zapLogger)
	history := usecase.NewTransactionHistoryService(repos.Transactions, zapLogger)
	webhooks := usecase.NewWebhookService(factory.WebhookVerifiers(), catalog, credits, repos.Webhooks, cfg.Webhook, zapLogger)

	writer, err := infraGenerator.NewOpenAIStoryWriter(cfg.Generation.LLMAPIKey, cfg.Generation.LLMModel, cfg.Generation.LLMBaseURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create story writer", zap.Error(err))
	}

	var (
		illustrator generator.Illustrator
		blobs       generator.BlobStore
	)
	if cfg.Generation.ImageAPIURL != "" && cfg.Storage.Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			zapLogger.Fatal("Failed to create S3 client", zap.Error(err))
		}
		illustrator = infraGenerator.NewImageAPIIllustrator(
			cfg.Generation.ImageAPIURL,
			cfg.Generation.ImageAPIKey,
			cfg.Generation.ImageModel,
			cfg.Generation.ImageMaxWidth,
			cfg.Generation.CallTimeout,
			zapLogger,
		)
		blobs = storage.NewS3BlobStore(s3Client, cfg.Storage, zapLogger)
	} else {
		zapLogger.Warn("Cover illustrations disabled: image API or storage bucket not configured")
	}

	stories := usecase.NewGenerationService(limiter, repos.Credits, repos.Stories, credits, writer, illustrator, blobs, notifier, cfg.Generation, zapLogger)

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, zapLogger)
	httpSrv := httpServer.NewServer(cfg, zapLogger, httpServer.Handlers{
		Payment: handlers.NewPaymentHandler(payments, recovery, history, zapLogger),
		Credit:  handlers.NewCreditHandler(credits, zapLogger),
		Catalog: handlers.NewCatalogHandler(catalog),
		Webhook: handlers.NewWebhookHandler(webhooks, zapLogger),
		Story:   handlers.NewStoryHandler(stories, zapLogger),
	})

	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	if err := shutdownTracer(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush traces", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}
