package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
)

// PassiveWatcher is the continuous producer: it subscribes to filesystem
// change notifications over all roots and enqueues affected files as they
// change. Create, modify, and delete events all funnel to the same enqueue;
// the consumer's missing-file branch naturally handles deletes.
//
// The watcher runs for the lifetime of the process on a dedicated goroutine
// and terminates only on shutdown or subscription error.
type PassiveWatcher struct {
	queueRepo *repository.QueueRepository
	log       *logger.Logger

	roots    []string
	excluded map[string]bool

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// WatcherConfig holds configuration for the passive watcher.
type WatcherConfig struct {
	Roots        []string
	ExcludedDirs []string
}

// NewPassiveWatcher creates a passive watcher.
// Parameters:
//   - queueRepo: durable queue store items are produced into.
//   - log: structured logger.
//   - cfg: roots and excluded directory names (shared with the scanner).
// Returns:
//   - *PassiveWatcher: initialized watcher, not yet started.
func NewPassiveWatcher(queueRepo *repository.QueueRepository, log *logger.Logger, cfg *WatcherConfig) *PassiveWatcher {
	excluded := make(map[string]bool, len(cfg.ExcludedDirs))
	for _, d := range cfg.ExcludedDirs {
		excluded[strings.ToLower(d)] = true
	}
	return &PassiveWatcher{
		queueRepo: queueRepo,
		log:       log,
		roots:     cfg.Roots,
		excluded:  excluded,
	}
}

// Start registers the recursive subscription and launches the event loop.
// A subscription failure is returned to the caller, who is expected to log
// it and continue without the watcher: it is a configuration problem the
// operator must notice via logs, not a process-fatal condition.
// Parameters:
//   - ctx: parent context; cancellation stops the event loop.
// Returns:
//   - error: non-nil when the filesystem subscription cannot be registered.
func (w *PassiveWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			watcher.Close()
			w.watcher = nil
			return err
		}
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.eventLoop(ctx)

	w.log.WithField(logger.FieldCount, len(w.roots)).Info("Passive watcher started")
	return nil
}

// Stop closes the subscription to release OS resources and waits for the
// event loop to drain.
func (w *PassiveWatcher) Stop() {
	if w.watcher == nil {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
	w.wg.Wait()
	w.log.Info("Passive watcher stopped")
}

// addRecursive registers the directory and its whole subtree, pruning
// excluded directory names.
func (w *PassiveWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded[strings.ToLower(d.Name())] {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// eventLoop pulls change notifications until shutdown or watcher error.
func (w *PassiveWatcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Watcher error")
		}
	}
}

// handleEvent funnels one notification into the queue. Newly created
// directories are added to the subscription so the watch stays recursive.
func (w *PassiveWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	path := event.Name

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.excluded[strings.ToLower(filepath.Base(path))] {
				if err := w.addRecursive(path); err != nil {
					w.log.WithError(err).WithField(logger.FieldPath, path).Debug("Failed to watch new directory")
				}
			}
			return
		}
	}

	if !domain.IsAllowedExt(filepath.Ext(path)) {
		return
	}

	// Directories and special files raise events too (an extensionless
	// directory passes the extension filter). Enqueue only regular files;
	// a failed stat means the path is gone, which the consumer's missing
	// branch handles.
	if info, err := os.Stat(path); err == nil && !info.Mode().IsRegular() {
		return
	}

	if err := w.queueRepo.Enqueue(ctx, path); err != nil {
		// Duplicate pending rows are tolerated; an enqueue race is expected.
		w.log.WithError(err).WithField(logger.FieldPath, path).Debug("Enqueue failed")
		return
	}
	w.log.WithFields(logger.Fields{
		logger.FieldPath: path,
		"op":             event.Op.String(),
	}).Debug("Change enqueued")
}
