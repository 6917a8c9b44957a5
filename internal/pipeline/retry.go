package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
)

// RetryWorker promotes unresolved high-priority error-log entries back into
// the scan queue on its own schedule, independent of the consumer's tick.
// Low-priority failures are left to the next natural producer pass.
//
// Promotion retries forever: an entry stays retrying until the re-enqueue
// succeeds. A file that stopped existing still resolves, because the
// consumer processes missing files as successes.
type RetryWorker struct {
	errorRepo *repository.ErrorLogRepository
	queueRepo *repository.QueueRepository
	log       *logger.Logger

	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RetryConfig holds tuning for the retry worker.
type RetryConfig struct {
	Interval  time.Duration
	BatchSize int
}

// NewRetryWorker creates a retry worker.
// Parameters:
//   - errorRepo: failure audit trail to promote from.
//   - queueRepo: durable queue store to promote into.
//   - log: structured logger.
//   - cfg: worker tuning; nil uses defaults (60s interval, batch 50).
// Returns:
//   - *RetryWorker: initialized worker, not yet started.
func NewRetryWorker(
	errorRepo *repository.ErrorLogRepository,
	queueRepo *repository.QueueRepository,
	log *logger.Logger,
	cfg *RetryConfig,
) *RetryWorker {
	if cfg == nil {
		cfg = &RetryConfig{}
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	return &RetryWorker{
		errorRepo: errorRepo,
		queueRepo: queueRepo,
		log:       log,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
}

// Start launches the periodic promotion loop.
func (w *RetryWorker) Start(ctx context.Context) {
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
	w.log.WithField("interval", w.interval.String()).Info("Error retry worker started")
}

// Stop terminates the promotion loop.
func (w *RetryWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("Error retry worker stopped")
}

// RunOnce performs one promotion pass: oldest unresolved high-priority
// entries first, each marked retrying, re-enqueued, and resolved on success.
func (w *RetryWorker) RunOnce(ctx context.Context) {
	entries, err := w.errorRepo.FetchRetryable(ctx, w.batchSize)
	if err != nil {
		w.log.WithError(err).Error("Failed to fetch retryable errors")
		return
	}

	for i := range entries {
		entry := &entries[i]
		if ctx.Err() != nil {
			return
		}

		if err := w.errorRepo.MarkRetrying(ctx, entry); err != nil {
			w.log.WithError(err).WithField(logger.FieldPath, entry.FilePath).
				Error("Failed to mark error entry retrying")
			continue
		}

		if err := w.queueRepo.Enqueue(ctx, entry.FilePath); err != nil {
			// Left as retrying for the next cycle.
			w.log.WithError(err).WithField(logger.FieldPath, entry.FilePath).
				Warn("Failed to re-enqueue failed path")
			continue
		}

		if err := w.errorRepo.MarkResolved(ctx, entry); err != nil {
			w.log.WithError(err).WithField(logger.FieldPath, entry.FilePath).
				Error("Failed to mark error entry resolved")
			continue
		}
		w.log.WithFields(logger.Fields{
			logger.FieldPath: entry.FilePath,
			"retry_count":    entry.RetryCount,
		}).Info("Failed path promoted back into queue")
	}
}
