package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"github.com/oskarw/filesentry/internal/config"
	"github.com/oskarw/filesentry/internal/fingerprint"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/pipeline"
	"github.com/oskarw/filesentry/internal/repository"
)

// One-shot scan: walk the roots, enqueue everything eligible, and
// optionally drain the queue before exiting. Useful for initial indexing
// and cron-driven rescans without the daemon.
func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "filesentry-scan",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	roots := flag.String("roots", "", "Comma-separated root directories (overrides config)")
	drain := flag.Bool("drain", false, "Process the queue until empty after scanning")
	timeout := flag.Duration("timeout", 0, "Walk ceiling (overrides config)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *roots != "" {
		cfg.Scan.Roots = *roots
	}
	if *timeout > 0 {
		cfg.Scan.WalkTimeout = *timeout
	}

	rootList := cfg.Scan.RootList()
	if len(rootList) == 0 {
		appLogger.Fatal("No scan roots configured (set -roots or scan.roots)")
	}

	appLogger.WithFields(logger.Fields{
		"roots": strings.Join(rootList, ","),
		"drain": *drain,
	}).Info("Starting scan")

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

	queueRepo := repository.NewQueueRepository(db)
	fileRepo := repository.NewFileRepository(db)
	errorRepo := repository.NewErrorLogRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scanner := pipeline.NewActiveScanner(queueRepo, appLogger, &pipeline.ScannerConfig{
		Roots:        rootList,
		ExcludedDirs: cfg.Scan.ExcludedDirs,
		WalkTimeout:  cfg.Scan.WalkTimeout,
	})
	enqueued := scanner.Run(ctx)
	appLogger.WithField(logger.FieldCount, enqueued).Info("Scan complete")

	if !*drain {
		return
	}

	// Drain mode runs consumer ticks back to back until the queue has no
	// ready items left. Backoff still applies: items rescheduled into the
	// future are left for the daemon.
	consumer := pipeline.NewConsumer(queueRepo, fileRepo, errorRepo,
		fingerprint.NewEngine(), appLogger, &pipeline.ConsumerConfig{
			BatchSize:    cfg.Queue.BatchSize,
			RetryBackoff: cfg.Queue.RetryBackoff,
		})

	for {
		ready, err := queueRepo.CountReady(ctx, time.Now())
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to count ready items")
		}
		if ready == 0 {
			break
		}
		consumer.Tick(ctx)
	}

	pending, _ := queueRepo.CountPending(ctx)
	appLogger.WithField(logger.FieldCount, pending).Info("Queue drained; remaining items are backed off")
}
