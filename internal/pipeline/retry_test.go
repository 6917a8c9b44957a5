package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/repository"
)

func TestRetryWorkerPromotesHighPriorityFailures(t *testing.T) {
	db := newTestDB(t)
	queueRepo := repository.NewQueueRepository(db)
	errorRepo := repository.NewErrorLogRepository(db)
	ctx := context.Background()

	seed := []domain.ErrorLogEntry{
		{Component: "queue_consumer", FilePath: "/data/high.bin", FilePriority: domain.PriorityHigh},
		{Component: "queue_consumer", FilePath: "/data/low.bin", FilePriority: domain.PriorityNormal},
	}
	for i := range seed {
		if err := errorRepo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	worker := NewRetryWorker(errorRepo, queueRepo, quietLogger(), nil)
	worker.RunOnce(ctx)

	// Only the high-priority path lands back in the queue.
	items, err := queueRepo.FetchReady(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d promoted items, want 1", len(items))
	}
	if items[0].Path != "/data/high.bin" {
		t.Errorf("promoted path = %q, want /data/high.bin", items[0].Path)
	}

	// The promoted entry is resolved; the low-priority one stays pending.
	resolved, err := errorRepo.ListByStatus(ctx, domain.ErrorStatusResolved, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(resolved) != 1 || resolved[0].FilePath != "/data/high.bin" {
		t.Errorf("resolved entries = %+v, want the high-priority one", resolved)
	}
	if resolved[0].RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", resolved[0].RetryCount)
	}

	pendingEntries, err := errorRepo.ListByStatus(ctx, domain.ErrorStatusPending, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pendingEntries) != 1 || pendingEntries[0].FilePath != "/data/low.bin" {
		t.Errorf("pending entries = %+v, want the low-priority one", pendingEntries)
	}
}

func TestRetryWorkerIdleWithoutFailures(t *testing.T) {
	db := newTestDB(t)
	queueRepo := repository.NewQueueRepository(db)
	errorRepo := repository.NewErrorLogRepository(db)
	ctx := context.Background()

	worker := NewRetryWorker(errorRepo, queueRepo, quietLogger(), nil)
	worker.RunOnce(ctx)

	pending, err := queueRepo.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if pending != 0 {
		t.Errorf("queue items = %d, want 0", pending)
	}
}
