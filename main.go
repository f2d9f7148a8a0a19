package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/auth"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/config"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/crypto"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/database"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/handlers"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/llm"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/logging"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/middleware"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/notion"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/services"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database_host", cfg.Database.Host),
		zap.Bool("notion_configured", cfg.Notion.IsConfigured()),
	)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.Database.ConnectionString()})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Info("Redis not configured, database list caching disabled")
	} else {
		defer func() { _ = redisClient.Close() }()
	}

	store, err := storage.NewGCSStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to create object store", zap.Error(err))
	}

	backends, err := llm.NewBackends(cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create model clients", zap.Error(err))
	}

	notionClient := notion.NewClient(cfg.Notion.ClientID, cfg.Notion.ClientSecret, logger)

	var encryptor *crypto.CredentialEncryptor
	if cfg.CredentialsKey != "" {
		encryptor, err = crypto.NewCredentialEncryptor(cfg.CredentialsKey)
		if err != nil {
			logger.Fatal("Failed to create credential encryptor", zap.Error(err))
		}
	} else {
		logger.Warn("PROJECT_CREDENTIALS_KEY not set, workspace tokens stored in plaintext")
	}

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()

	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)
	tenantMiddleware := handlers.TenantMiddleware(database.WithTenantContext(db, logger))

	projectRepo := repositories.NewProjectRepository()
	epicRepo := repositories.NewEpicRepository()
	fileRepo := repositories.NewDesignFileRepository()
	artifactRepo := repositories.NewArtifactRepository()
	notionRepo := repositories.NewNotionRepository()

	projectService := services.NewProjectService(projectRepo, logger)
	epicService := services.NewEpicService(epicRepo, fileRepo, artifactRepo, projectRepo, store, logger)
	uploadService := services.NewUploadService(epicRepo, fileRepo, projectRepo, store, logger)
	analyzeService := services.NewAnalyzeService(epicRepo, fileRepo, store, backends.Vision, logger)
	narrationService := services.NewNarrationService(epicRepo, fileRepo, projectRepo, store, backends.Vision, backends.Transcriber, logger)
	appFlowService := services.NewAppFlowService(epicRepo, fileRepo, artifactRepo, projectRepo, backends.Text, logger)
	screenDocService := services.NewScreenDocService(epicRepo, fileRepo, artifactRepo, projectRepo, store, backends.Vision, logger)
	toolService := services.NewToolService(epicRepo, fileRepo, artifactRepo, projectRepo, backends.Text, logger)
	notionService := services.NewNotionService(notionRepo, epicRepo, artifactRepo, notionClient, redisClient, encryptor, cfg.Notion, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewEpicsHandler(epicService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewFilesHandler(uploadService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewAnalyzeHandler(analyzeService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewNarrationHandler(narrationService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewAppFlowHandler(appFlowService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewScreenDocsHandler(screenDocService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewToolsHandler(toolService, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)
	handlers.NewNotionHandler(notionService, cfg.SessionSecret, logger).RegisterRoutes(mux, authMiddleware, tenantMiddleware)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
		// Streaming generation responses can run for several minutes, so
		// no WriteTimeout here. ReadHeaderTimeout still bounds slow clients.
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting epicdraft-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
