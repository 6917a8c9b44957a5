package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
)

// ActiveScanner walks the configured root trees once and enqueues every
// eligible file. It is the batch producer counterpart to the passive watcher.
type ActiveScanner struct {
	queueRepo *repository.QueueRepository
	log       *logger.Logger

	roots    []string
	excluded map[string]bool
	timeout  time.Duration
}

// ScannerConfig holds configuration for the active scanner.
type ScannerConfig struct {
	Roots        []string
	ExcludedDirs []string
	// WalkTimeout is the hard ceiling after which the caller proceeds
	// regardless of walk completion. Zero means one hour.
	WalkTimeout time.Duration
}

// NewActiveScanner creates an active scanner.
// Parameters:
//   - queueRepo: durable queue store items are produced into.
//   - log: structured logger.
//   - cfg: roots, excluded directory names, and the walk ceiling.
// Returns:
//   - *ActiveScanner: initialized scanner.
func NewActiveScanner(queueRepo *repository.QueueRepository, log *logger.Logger, cfg *ScannerConfig) *ActiveScanner {
	excluded := make(map[string]bool, len(cfg.ExcludedDirs))
	for _, d := range cfg.ExcludedDirs {
		excluded[strings.ToLower(d)] = true
	}
	timeout := cfg.WalkTimeout
	if timeout == 0 {
		timeout = time.Hour
	}
	return &ActiveScanner{
		queueRepo: queueRepo,
		log:       log,
		roots:     cfg.Roots,
		excluded:  excluded,
		timeout:   timeout,
	}
}

// Run walks all roots in parallel and blocks until every walk finishes or
// the ceiling elapses. Walks still in flight at the ceiling are abandoned.
// Parameters:
//   - ctx: parent context; cancellation abandons in-flight walks.
// Returns:
//   - int64: number of files enqueued before returning.
func (s *ActiveScanner) Run(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var enqueued atomic.Int64

	// Worker-per-root pool bounded by available CPU parallelism.
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for _, root := range s.roots {
		wg.Add(1)
		go func(root string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			s.walkRoot(ctx, root, &enqueued)
		}(root)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.WithField("timeout", s.timeout.String()).Warn("Scan walk ceiling reached, proceeding with partial walk")
	}

	logger.With(logger.Fields{
		logger.FieldCount:      enqueued.Load(),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info(ctx, "Active scan finished: roots=%d", len(s.roots))
	return enqueued.Load()
}

// walkRoot walks a single tree, pruning excluded directory names and
// enqueueing eligible regular files.
func (s *ActiveScanner) walkRoot(ctx context.Context, root string, enqueued *atomic.Int64) {
	log := s.log.WithField(logger.FieldScanRoot, root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entries are skipped, not fatal to the walk.
			log.WithError(err).WithField(logger.FieldPath, path).Debug("Skipping unreadable entry")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if s.excluded[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !domain.IsAllowedExt(filepath.Ext(path)) {
			return nil
		}

		if err := s.queueRepo.Enqueue(ctx, path); err != nil {
			// Expected under races with the passive watcher; the queue
			// tolerates duplicate pending rows.
			log.WithError(err).WithField(logger.FieldPath, path).Debug("Enqueue failed")
			return nil
		}
		enqueued.Add(1)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Walk failed")
	}
}
