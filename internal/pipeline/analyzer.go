package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/oskarw/filesentry/internal/analysis"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
	"github.com/oskarw/filesentry/internal/storage"
	"gorm.io/gorm"
)

// AnalysisWorker runs downstream analysis over fingerprinted records: an
// antivirus pass, an AI description routed by size, and a type
// classification. Each record is analyzed at most once per scan; a rescan
// makes it eligible again.
//
// Files at or above the large-file threshold are staged to object storage
// first and described by reference. Everything smaller travels inline.
type AnalysisWorker struct {
	fileRepo    *repository.FileRepository
	errorRepo   *repository.ErrorLogRepository
	historyRepo *repository.LabelHistoryRepository
	describer   *analysis.Describer
	antivirus   *analysis.Antivirus
	store       storage.ObjectStorage
	log         *logger.Logger

	interval  time.Duration
	batchSize int
	largeSize int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// AnalysisWorkerConfig holds tuning for the analysis worker.
type AnalysisWorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	// LargeFileThreshold is the size at and above which files are staged to
	// object storage and described by reference instead of inline.
	LargeFileThreshold int64
}

// NewAnalysisWorker creates an analysis worker.
// Parameters:
//   - fileRepo: file index to read candidates from and write results to.
//   - errorRepo: failure audit trail.
//   - historyRepo: append-only classification log.
//   - describer: AI description/classification backend.
//   - av: antivirus client.
//   - store: object storage sink for large files.
//   - log: structured logger.
//   - cfg: worker tuning; nil uses defaults (30s interval, batch 20).
// Returns:
//   - *AnalysisWorker: initialized worker, not yet started.
func NewAnalysisWorker(
	fileRepo *repository.FileRepository,
	errorRepo *repository.ErrorLogRepository,
	historyRepo *repository.LabelHistoryRepository,
	describer *analysis.Describer,
	av *analysis.Antivirus,
	store storage.ObjectStorage,
	log *logger.Logger,
	cfg *AnalysisWorkerConfig,
) *AnalysisWorker {
	if cfg == nil {
		cfg = &AnalysisWorkerConfig{}
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 20
	}
	if cfg.LargeFileThreshold == 0 {
		cfg.LargeFileThreshold = analysis.LargeFileThreshold
	}
	return &AnalysisWorker{
		fileRepo:    fileRepo,
		errorRepo:   errorRepo,
		historyRepo: historyRepo,
		describer:   describer,
		antivirus:   av,
		store:       store,
		log:         log,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		largeSize:   cfg.LargeFileThreshold,
	}
}

// Start launches the periodic analysis loop.
func (w *AnalysisWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
	w.log.WithField("interval", w.interval.String()).Info("Analysis worker started")
}

// Stop terminates the analysis loop.
func (w *AnalysisWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("Analysis worker stopped")
}

// RunOnce performs one analysis pass over the oldest unanalyzed records.
// Per-record failures are isolated: they are recorded to the error log at
// high priority and the pass continues.
func (w *AnalysisWorker) RunOnce(ctx context.Context) {
	recs, err := w.fileRepo.ListForAnalysis(ctx, w.batchSize)
	if err != nil {
		w.log.WithError(err).Error("Failed to list records for analysis")
		return
	}
	if len(recs) == 0 {
		return
	}

	start := time.Now()
	analyzed := 0
	for i := range recs {
		if ctx.Err() != nil {
			return
		}
		if err := w.analyzeRecord(ctx, &recs[i]); err != nil {
			w.recordFailure(ctx, &recs[i], err)
			continue
		}
		analyzed++
	}
	logger.With(logger.Fields{
		logger.FieldCount: analyzed,
	}).WithDuration(time.Since(start).Milliseconds()).Info(ctx, "Analysis pass completed")
}

// analyzeRecord runs the full analysis sequence for one record under its
// row lock: antivirus, description, classification, persist, history append.
// The record is re-read inside the lock so a quarantine move that happened
// since listing is analyzed at its current location.
func (w *AnalysisWorker) analyzeRecord(ctx context.Context, rec *domain.FileRecord) error {
	return w.fileRepo.WithRecordLock(rec.ID, func() error {
		cur, err := w.fileRepo.GetByID(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Purged while waiting for the lock.
				return nil
			}
			return err
		}
		*rec = *cur

		now := time.Now()

		infected, err := w.scanForViruses(ctx, rec.Path)
		if err == nil {
			rec.Infected = infected
			rec.VirusScannedAt = &now
		}

		summary, err := w.describe(ctx, rec)
		if err != nil {
			return fmt.Errorf("describe: %w", err)
		}
		rec.AISummary = summary

		label, err := w.describer.Classify(ctx, rec.Path, rec.Kind)
		if err != nil {
			return fmt.Errorf("classify: %w", err)
		}
		rec.TypeLabel = label.Name
		rec.TypeLabelConfidence = label.Confidence
		rec.TypeLabelSource = w.describer.Model()
		rec.TypeLabelUpdatedAt = &now
		rec.AIAnalyzedAt = &now

		if err := w.fileRepo.Save(ctx, rec); err != nil {
			return fmt.Errorf("persist analysis: %w", err)
		}

		if err := w.historyRepo.Append(ctx, &domain.LabelHistory{
			Path:       rec.Path,
			Label:      label.Name,
			Confidence: label.Confidence,
			Source:     w.describer.Model(),
		}); err != nil {
			// The current-state write already succeeded; the audit row is
			// lost only for this application, not retried.
			w.log.WithError(err).WithField(logger.FieldPath, rec.Path).
				Warn("Failed to append label history")
		}

		w.log.WithFields(logger.Fields{
			logger.FieldPath: rec.Path,
			"label":          label.Name,
			"infected":       rec.Infected,
		}).Info("File analyzed")
		return nil
	})
}

// scanForViruses applies the fail-open policy: an unreachable scanner logs a
// warning and reports clean without marking the record scanned.
func (w *AnalysisWorker) scanForViruses(ctx context.Context, path string) (bool, error) {
	infected, err := w.antivirus.Scan(ctx, path)
	if err != nil {
		if errors.Is(err, analysis.ErrScannerUnavailable) {
			w.log.WithError(err).WithField(logger.FieldPath, path).
				Warn("Antivirus unavailable, treating file as clean")
		}
		return false, err
	}
	return infected, nil
}

// describe routes the description request by file size: large files are
// staged to object storage and described by reference, the rest inline.
func (w *AnalysisWorker) describe(ctx context.Context, rec *domain.FileRecord) (string, error) {
	if rec.SizeBytes < w.largeSize {
		return w.describer.DescribeSmall(ctx, rec.Path, rec.Kind)
	}

	objectName := stagedObjectName(rec)
	if err := w.store.Put(ctx, objectName, rec.Path); err != nil {
		return "", fmt.Errorf("stage to object storage: %w", err)
	}
	return w.describer.DescribeLarge(ctx, w.store.GetURL(objectName), rec.Kind)
}

// stagedObjectName keys staged objects by record ID so re-staging after a
// rescan overwrites rather than accumulates.
func stagedObjectName(rec *domain.FileRecord) string {
	return "staged/" + rec.ID + filepath.Ext(rec.Path)
}

// recordFailure appends a high-priority error-log entry for a failed
// analysis so the retry worker re-enqueues the path.
func (w *AnalysisWorker) recordFailure(ctx context.Context, rec *domain.FileRecord, cause error) {
	w.log.WithError(cause).WithField(logger.FieldPath, rec.Path).Error("Analysis failed")

	entry := &domain.ErrorLogEntry{
		Component:    "analysis_worker",
		FilePath:     rec.Path,
		FilePriority: domain.PriorityHigh,
		ErrorCode:    "analysis_failed",
		Message:      cause.Error(),
	}
	if err := w.errorRepo.Record(ctx, entry); err != nil {
		w.log.WithError(err).WithField(logger.FieldPath, rec.Path).
			Error("Failed to record analysis failure")
	}
}
