package repository

import (
	"context"
	"testing"

	"github.com/oskarw/filesentry/internal/domain"
)

func TestRecordFillsDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewErrorLogRepository(db)
	ctx := context.Background()

	entry := &domain.ErrorLogEntry{
		Component: "queue_consumer",
		FilePath:  "/data/locked.bin",
		ErrorCode: "process_failed",
		Message:   "permission denied",
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if entry.ID == "" {
		t.Error("ID not filled")
	}
	if entry.Status != domain.ErrorStatusPending {
		t.Errorf("status = %q, want pending", entry.Status)
	}
}

func TestFetchRetryableOnlyHighPriority(t *testing.T) {
	db := newTestDB(t)
	repo := NewErrorLogRepository(db)
	ctx := context.Background()

	seed := []domain.ErrorLogEntry{
		{Component: "queue_consumer", FilePath: "/low", FilePriority: domain.PriorityNormal},
		{Component: "queue_consumer", FilePath: "/high", FilePriority: domain.PriorityHigh},
		{Component: "analysis_worker", FilePath: "/resolved", FilePriority: domain.PriorityHigh, Status: domain.ErrorStatusResolved},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	entries, err := repo.FetchRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("FetchRetryable: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d retryable entries, want 1", len(entries))
	}
	if entries[0].FilePath != "/high" {
		t.Errorf("retryable path = %q, want /high", entries[0].FilePath)
	}
}

func TestStatusTransitions(t *testing.T) {
	db := newTestDB(t)
	repo := NewErrorLogRepository(db)
	ctx := context.Background()

	entry := &domain.ErrorLogEntry{
		Component:    "queue_consumer",
		FilePath:     "/data/a.txt",
		FilePriority: domain.PriorityHigh,
	}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := repo.MarkRetrying(ctx, entry); err != nil {
		t.Fatalf("MarkRetrying: %v", err)
	}
	if entry.Status != domain.ErrorStatusRetrying {
		t.Errorf("status = %q, want retrying", entry.Status)
	}
	if entry.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", entry.RetryCount)
	}
	if entry.LastAttempt == nil {
		t.Error("last attempt not stamped")
	}

	// Still fetchable while retrying.
	entries, err := repo.FetchRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("FetchRetryable: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("retrying entry not fetchable: got %d", len(entries))
	}

	if err := repo.MarkResolved(ctx, entry); err != nil {
		t.Fatalf("MarkResolved: %v", err)
	}
	entries, err = repo.FetchRetryable(ctx, 10)
	if err != nil {
		t.Fatalf("FetchRetryable: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("resolved entry still fetchable: got %d", len(entries))
	}
}
