package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/repository"
)

// DuplicateReconciler periodically recomputes every record's duplicate flag
// in one pass. The per-write path only updates the record being written, so
// sibling records can hold a stale flag until this pass corrects them.
// A zero interval disables the reconciler.
type DuplicateReconciler struct {
	fileRepo *repository.FileRepository
	log      *logger.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDuplicateReconciler creates a reconciler. interval 0 means disabled.
func NewDuplicateReconciler(fileRepo *repository.FileRepository, log *logger.Logger, interval time.Duration) *DuplicateReconciler {
	return &DuplicateReconciler{
		fileRepo: fileRepo,
		log:      log,
		interval: interval,
	}
}

// Start launches the periodic reconcile loop. No-op when disabled.
func (r *DuplicateReconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
	r.log.WithField("interval", r.interval.String()).Info("Duplicate reconciler started")
}

// Stop terminates the reconcile loop.
func (r *DuplicateReconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// RunOnce performs one full duplicate-flag recomputation.
func (r *DuplicateReconciler) RunOnce(ctx context.Context) {
	start := time.Now()
	if err := r.fileRepo.ReconcileDuplicates(ctx); err != nil {
		r.log.WithError(err).Error("Duplicate reconcile failed")
		return
	}
	logger.With(logger.Fields{}).
		WithDuration(time.Since(start).Milliseconds()).
		Debug(ctx, "Duplicate flags reconciled")
}
