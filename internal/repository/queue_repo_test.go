package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
)

func TestEnqueueAndFetchReady(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	if err := repo.Enqueue(ctx, "/data/a.txt"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := repo.Enqueue(ctx, "/data/b.txt"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	items, err := repo.FetchReady(ctx, time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d ready items, want 2", len(items))
	}
	for _, item := range items {
		if item.Kind != domain.QueueKindActiveDescribe {
			t.Errorf("item kind = %q, want %q", item.Kind, domain.QueueKindActiveDescribe)
		}
		if item.Attempts != 0 {
			t.Errorf("fresh item attempts = %d, want 0", item.Attempts)
		}
	}
}

func TestFetchReadySkipsBackedOffItems(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	now := time.Now()

	seed := []domain.QueueItem{
		{ID: uuid.New().String(), Path: "/ready", Kind: domain.QueueKindActiveDescribe, NotBefore: now.Add(-time.Minute)},
		{ID: uuid.New().String(), Path: "/future", Kind: domain.QueueKindActiveDescribe, NotBefore: now.Add(5 * time.Minute)},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	items, err := repo.FetchReady(ctx, now, 10)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d ready items, want 1", len(items))
	}
	if items[0].Path != "/ready" {
		t.Errorf("ready item path = %q, want /ready", items[0].Path)
	}
}

func TestFetchReadyOrdersByAttemptsThenReadiness(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	now := time.Now()

	// Fresh work must not starve behind a perpetually retrying item, even
	// when the retrying item became ready earlier.
	seed := []domain.QueueItem{
		{ID: uuid.New().String(), Path: "/retrying", Kind: domain.QueueKindActiveDescribe, Attempts: 4, NotBefore: now.Add(-time.Hour)},
		{ID: uuid.New().String(), Path: "/fresh-late", Kind: domain.QueueKindActiveDescribe, Attempts: 0, NotBefore: now.Add(-time.Minute)},
		{ID: uuid.New().String(), Path: "/fresh-early", Kind: domain.QueueKindActiveDescribe, Attempts: 0, NotBefore: now.Add(-30 * time.Minute)},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	items, err := repo.FetchReady(ctx, now, 10)
	if err != nil {
		t.Fatalf("FetchReady: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	wantOrder := []string{"/fresh-early", "/fresh-late", "/retrying"}
	for i, want := range wantOrder {
		if items[i].Path != want {
			t.Errorf("position %d: got %q, want %q", i, items[i].Path, want)
		}
	}
}

func TestRescheduleAdvancesReadiness(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	if err := repo.Enqueue(ctx, "/data/locked.bin"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	items, err := repo.FetchReady(ctx, time.Now().Add(time.Second), 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("FetchReady: items=%d err=%v", len(items), err)
	}

	item := &items[0]
	item.Attempts++
	item.NotBefore = time.Now().Add(5 * time.Minute)
	if err := repo.Reschedule(ctx, item); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	// Not ready now, still counted as pending.
	ready, err := repo.CountReady(ctx, time.Now())
	if err != nil {
		t.Fatalf("CountReady: %v", err)
	}
	if ready != 0 {
		t.Errorf("ready count = %d, want 0", ready)
	}
	pending, err := repo.CountPending(ctx)
	if err != nil {
		t.Fatalf("CountPending: %v", err)
	}
	if pending != 1 {
		t.Errorf("pending count = %d, want 1", pending)
	}

	var reloaded domain.QueueItem
	if err := db.First(&reloaded, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", reloaded.Attempts)
	}
}

func TestDeleteRemovesItem(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()

	if err := repo.Enqueue(ctx, "/data/a.txt"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	items, _ := repo.FetchReady(ctx, time.Now().Add(time.Second), 1)
	if len(items) != 1 {
		t.Fatalf("want one item")
	}

	if err := repo.Delete(ctx, items[0].ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	pending, _ := repo.CountPending(ctx)
	if pending != 0 {
		t.Errorf("pending after delete = %d, want 0", pending)
	}
}
