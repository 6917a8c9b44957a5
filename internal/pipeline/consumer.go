// Package pipeline contains the scan-queue core: the producers that discover
// files, the consumer that fingerprints and indexes them, the error-log
// retry worker, and the isolation manager. Components never talk to each
// other directly; they coordinate only through the durable queue and the
// file index.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/fingerprint"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
	"gorm.io/gorm"
)

// Consumer drains the durable scan queue on a fixed schedule. Each tick
// fetches a bounded batch of ready items, resolves their file records,
// fingerprints content, and either deletes succeeded items or reschedules
// failed ones with backoff. One item's failure never affects another item in
// the same batch, and no failure is ever dropped silently: it becomes a
// rescheduled item plus an error-log entry.
type Consumer struct {
	queueRepo *repository.QueueRepository
	fileRepo  *repository.FileRepository
	errorRepo *repository.ErrorLogRepository
	fp        fingerprint.Fingerprinter
	log       *logger.Logger

	interval  time.Duration
	batchSize int
	backoff   time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConsumerConfig holds tuning for the queue consumer.
type ConsumerConfig struct {
	TickInterval time.Duration
	BatchSize    int
	// RetryBackoff is the fixed reschedule delay for failed items. The
	// backoff deliberately does not grow with the attempt count; chronic
	// failures are triaged through the error log instead.
	RetryBackoff time.Duration
}

// NewConsumer creates a queue consumer.
// Parameters:
//   - queueRepo: durable queue store.
//   - fileRepo: authoritative file index.
//   - errorRepo: failure audit trail.
//   - fp: content fingerprint engine.
//   - log: structured logger.
//   - cfg: consumer tuning; nil uses defaults (5s tick, batch 50, 5m backoff).
// Returns:
//   - *Consumer: initialized consumer, not yet started.
func NewConsumer(
	queueRepo *repository.QueueRepository,
	fileRepo *repository.FileRepository,
	errorRepo *repository.ErrorLogRepository,
	fp fingerprint.Fingerprinter,
	log *logger.Logger,
	cfg *ConsumerConfig,
) *Consumer {
	if cfg == nil {
		cfg = &ConsumerConfig{}
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 5 * time.Minute
	}
	return &Consumer{
		queueRepo: queueRepo,
		fileRepo:  fileRepo,
		errorRepo: errorRepo,
		fp:        fp,
		log:       log,
		interval:  cfg.TickInterval,
		batchSize: cfg.BatchSize,
		backoff:   cfg.RetryBackoff,
	}
}

// Start launches the periodic tick loop. It returns immediately; call Stop
// (or cancel the parent context) to shut the loop down.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Tick(ctx)
			}
		}
	}()
	c.log.WithField("interval", c.interval.String()).Info("Queue consumer started")
}

// Stop terminates the tick loop and waits for the in-flight tick to finish.
func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.log.Info("Queue consumer stopped")
}

// Tick runs one batch-processing pass. Items are fetched in fetch order
// (fewest attempts first, then oldest readiness) and processed sequentially;
// each item's outcome is committed independently.
func (c *Consumer) Tick(ctx context.Context) {
	start := time.Now()
	items, err := c.queueRepo.FetchReady(ctx, start, c.batchSize)
	if err != nil {
		c.log.WithError(err).Error("Failed to fetch ready queue items")
		return
	}
	if len(items) == 0 {
		return
	}

	var succeeded, failed int
	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			return
		}
		if err := c.processItem(ctx, item); err != nil {
			failed++
			c.rescheduleAndLog(ctx, item, err)
			continue
		}
		succeeded++
		if err := c.queueRepo.Delete(ctx, item.ID); err != nil {
			c.log.WithError(err).WithField(logger.FieldQueueItemID, item.ID).
				Error("Failed to delete processed queue item")
		}
	}

	logger.With(logger.Fields{
		logger.FieldCount:      len(items),
		"succeeded":            succeeded,
		"failed":               failed,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug(ctx, "Queue tick completed")
}

// processItem resolves or creates the file record for one queue item and
// brings it up to date. A file missing from disk is a terminal, valid state,
// not an error: the record is marked missing and the item succeeds.
//
// The record lock is keyed by ID, so the path is resolved first and the
// record re-read inside the critical section: the isolation manager may have
// moved the file while this item waited for the lock, and the refresh must
// see the current path.
func (c *Consumer) processItem(ctx context.Context, item *domain.QueueItem) error {
	existing, err := c.fileRepo.GetByPath(ctx, item.Path)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if existing == nil {
		rec := &domain.FileRecord{
			ID:         uuid.New().String(),
			Path:       item.Path,
			ParentPath: filepath.Dir(item.Path),
		}
		return c.fileRepo.WithRecordLock(rec.ID, func() error {
			return c.refresh(ctx, rec, true)
		})
	}

	return c.fileRepo.WithRecordLock(existing.ID, func() error {
		rec, err := c.fileRepo.GetByID(ctx, existing.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Purged while this item waited; nothing left to index.
				return nil
			}
			return err
		}
		return c.refresh(ctx, rec, false)
	})
}

// refresh stats the record's current on-disk location and brings the index
// row up to date. Must run under the record lock.
func (c *Consumer) refresh(ctx context.Context, rec *domain.FileRecord, isNew bool) error {
	info, statErr := os.Stat(rec.Path)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return statErr
		}
		rec.Kind = domain.FileKindMissing
		rec.SizeBytes = 0
		rec.LastScanned = time.Now()
		return c.persist(ctx, rec, isNew)
	}

	// Directories are not indexable. The watcher filters them out, but a
	// racing replace can still land one here; an existing record means the
	// file it described is gone.
	if info.IsDir() {
		if isNew {
			return nil
		}
		rec.Kind = domain.FileKindMissing
		rec.SizeBytes = 0
		rec.LastScanned = time.Now()
		return c.persist(ctx, rec, false)
	}

	ext := domain.NormalizeExt(filepath.Ext(rec.Path))
	rec.Ext = ext
	rec.Kind = domain.KindForExt(ext)
	rec.SizeBytes = info.Size()
	rec.ModifiedAt = info.ModTime()
	rec.ChangedAt = changeTime(info)
	rec.LastScanned = time.Now()

	hash, err := c.fp.Fingerprint(rec.Path, ext)
	if err != nil {
		return err
	}
	rec.ContentHash = hash

	if err := c.persist(ctx, rec, isNew); err != nil {
		return err
	}
	if _, err := c.fileRepo.UpdateDuplicateFlag(ctx, rec); err != nil {
		return err
	}
	return nil
}

func (c *Consumer) persist(ctx context.Context, rec *domain.FileRecord, isNew bool) error {
	if isNew {
		return c.fileRepo.Create(ctx, rec)
	}
	return c.fileRepo.Save(ctx, rec)
}

// rescheduleAndLog converts a failed item into a future retry plus an
// error-log entry. Attempts strictly increase and readiness advances by the
// fixed backoff; the item stays queryable, never lost.
func (c *Consumer) rescheduleAndLog(ctx context.Context, item *domain.QueueItem, cause error) {
	item.Attempts++
	item.NotBefore = time.Now().Add(c.backoff)
	if err := c.queueRepo.Reschedule(ctx, item); err != nil {
		c.log.WithError(err).WithField(logger.FieldQueueItemID, item.ID).
			Error("Failed to reschedule queue item")
	}

	// Files that keep failing escalate to high priority so the retry worker
	// picks them up instead of waiting for the next full scan.
	priority := domain.PriorityNormal
	if item.Attempts >= 3 {
		priority = domain.PriorityHigh
	}

	entry := &domain.ErrorLogEntry{
		Component:    "queue_consumer",
		FilePath:     item.Path,
		FilePriority: priority,
		ErrorCode:    "process_failed",
		Message:      cause.Error(),
		Details:      string(debug.Stack()),
	}
	if err := c.errorRepo.Record(ctx, entry); err != nil {
		c.log.WithError(err).WithField(logger.FieldPath, item.Path).
			Error("Failed to record error-log entry")
	}

	c.log.WithFields(logger.Fields{
		logger.FieldPath:     item.Path,
		logger.FieldAttempts: item.Attempts,
	}).WithError(cause).Warn("Queue item failed, rescheduled with backoff")
}
