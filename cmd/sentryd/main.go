package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oskarw/filesentry/internal/analysis"
	"github.com/oskarw/filesentry/internal/api"
	"github.com/oskarw/filesentry/internal/api/middleware"
	"github.com/oskarw/filesentry/internal/config"
	"github.com/oskarw/filesentry/internal/fingerprint"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/pipeline"
	"github.com/oskarw/filesentry/internal/repository"
	"github.com/oskarw/filesentry/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "filesentry",
		LogFile:     cfg.Log.File,
		LogFileOnly: cfg.Log.FileOnly,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			appLogger.WithError(err).Fatal("Failed to migrate database")
		}
	}

	// Initialize repositories
	queueRepo := repository.NewQueueRepository(db)
	fileRepo := repository.NewFileRepository(db)
	errorRepo := repository.NewErrorLogRepository(db)
	historyRepo := repository.NewLabelHistoryRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize object storage (supports R2, S3, S3-compatible)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if b, ok := objectStorage.(interface{ EnsureBucket(context.Context) error }); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Initialize external analyzers. A missing antivirus endpoint is fatal:
	// running without malware scanning silently is not acceptable.
	describer := analysis.NewDescriber(&analysis.DescriberConfig{
		Model:   cfg.AI.Model,
		APIKey:  cfg.AI.APIKey,
		BaseURL: cfg.AI.BaseURL,
	})
	av, err := analysis.NewAntivirus(&analysis.AntivirusConfig{
		Endpoint: cfg.Antivirus.Endpoint,
		Timeout:  cfg.Antivirus.Timeout,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Antivirus is not configured")
	}

	// Fingerprint engine and quarantine manager
	fp := fingerprint.NewEngine()
	isolation := pipeline.NewIsolationManager(fileRepo, appLogger, cfg.Quarantine.Root)

	// Producers
	scanner := pipeline.NewActiveScanner(queueRepo, appLogger, &pipeline.ScannerConfig{
		Roots:        cfg.Scan.RootList(),
		ExcludedDirs: cfg.Scan.ExcludedDirs,
		WalkTimeout:  cfg.Scan.WalkTimeout,
	})
	watcher := pipeline.NewPassiveWatcher(queueRepo, appLogger, &pipeline.WatcherConfig{
		Roots:        cfg.Scan.RootList(),
		ExcludedDirs: cfg.Scan.ExcludedDirs,
	})

	// Workers
	consumer := pipeline.NewConsumer(queueRepo, fileRepo, errorRepo, fp, appLogger, &pipeline.ConsumerConfig{
		TickInterval: cfg.Queue.TickInterval,
		BatchSize:    cfg.Queue.BatchSize,
		RetryBackoff: cfg.Queue.RetryBackoff,
	})
	retryWorker := pipeline.NewRetryWorker(errorRepo, queueRepo, appLogger, &pipeline.RetryConfig{
		Interval:  cfg.Retry.Interval,
		BatchSize: cfg.Retry.BatchSize,
	})
	analysisWorker := pipeline.NewAnalysisWorker(fileRepo, errorRepo, historyRepo,
		describer, av, objectStorage, appLogger, &pipeline.AnalysisWorkerConfig{
			Interval:           cfg.Analysis.Interval,
			BatchSize:          cfg.Analysis.BatchSize,
			LargeFileThreshold: cfg.Analysis.LargeFileThreshold,
		})
	reconciler := pipeline.NewDuplicateReconciler(fileRepo, appLogger, cfg.Analysis.ReconcileInterval)

	// Start the pipeline
	consumer.Start(ctx)
	retryWorker.Start(ctx)
	if cfg.Analysis.Enabled {
		analysisWorker.Start(ctx)
	}
	reconciler.Start(ctx)

	// Watcher failure is not fatal: the active scanner still covers the
	// roots, the operator notices via logs.
	if err := watcher.Start(ctx); err != nil {
		appLogger.WithError(err).Error("Passive watcher failed to start, continuing without it")
	}

	// One initial walk so a fresh deployment indexes existing files.
	go scanner.Run(ctx)

	// Setup router
	router := api.SetupRouter(&api.Deps{
		FileRepo:    fileRepo,
		QueueRepo:   queueRepo,
		ErrorRepo:   errorRepo,
		HistoryRepo: historyRepo,
		Isolation:   isolation,
		Scanner:     scanner,
		Logger:      appLogger,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	// Stop producers first so no new work arrives, then the workers, then
	// the HTTP server. The watcher must close its subscription to release
	// OS resources before exit.
	watcher.Stop()
	cancel()
	consumer.Stop()
	retryWorker.Stop()
	if cfg.Analysis.Enabled {
		analysisWorker.Stop()
	}
	reconciler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
