package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkarlsen/depot/internal/api"
	"github.com/mkarlsen/depot/internal/config"
	"github.com/mkarlsen/depot/internal/fatal"
	"github.com/mkarlsen/depot/internal/logger"
	"github.com/mkarlsen/depot/internal/reporting"
	"github.com/mkarlsen/depot/internal/repository"
	"github.com/mkarlsen/depot/internal/service"
	"github.com/mkarlsen/depot/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Error tracker: enabled only when a DSN is configured
	reporter := reporting.New(&cfg.Reporting, log)
	if reporter.Enabled() {
		log.Infof("error reporting enabled")
	}

	// Last-resort capture for panics outside any request scope.
	// Logged and swallowed; the process keeps serving.
	fatalHandler := fatal.NewHandler(log, reporter)
	defer fatalHandler.Capture()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	artifactRepo := repository.NewArtifactRepository(db)
	deltaRepo := repository.NewDeltaRepository(db)

	// Initialize blob storage (supports MinIO, R2, S3)
	store, err := storage.NewBlobStore(&storage.S3Config{
		Type:      storage.StoreType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		log.Fatalf("failed to initialize blob storage: %v", err)
	}

	ctx := context.Background()
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatalf("failed to ensure storage bucket: %v", err)
	}

	// Initialize services
	artifactService := service.NewArtifactService(artifactRepo, deltaRepo, store, log)
	deltaService := service.NewDeltaService(deltaRepo, artifactRepo, store, log)

	// Setup router
	router := api.SetupRouter(api.Deps{
		Config:    cfg,
		Log:       log,
		Reporter:  reporter,
		Artifacts: artifactService,
		Deltas:    deltaService,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	fatalHandler.Go(func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Infof("starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	})

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Infof("server exited")
}
