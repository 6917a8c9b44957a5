package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
)

func seedRecord(t *testing.T, repo *FileRepository, path, hash string) *domain.FileRecord {
	t.Helper()
	rec := &domain.FileRecord{
		ID:          uuid.New().String(),
		Path:        path,
		ContentHash: hash,
		Kind:        domain.FileKindDoc,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("seed record %s: %v", path, err)
	}
	return rec
}

func TestUpdateDuplicateFlag(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	first := seedRecord(t, repo, "/data/a.txt", "hash-1")
	dup, err := repo.UpdateDuplicateFlag(ctx, first)
	if err != nil {
		t.Fatalf("UpdateDuplicateFlag: %v", err)
	}
	if dup {
		t.Error("single record flagged as duplicate")
	}

	second := seedRecord(t, repo, "/data/b.txt", "hash-1")
	dup, err = repo.UpdateDuplicateFlag(ctx, second)
	if err != nil {
		t.Fatalf("UpdateDuplicateFlag: %v", err)
	}
	if !dup {
		t.Error("matching hash not flagged as duplicate")
	}

	// Flagging propagates to every record sharing the hash.
	reloaded, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !reloaded.Duplicate {
		t.Error("sibling sharing the hash not flagged")
	}
}

func TestDuplicateUnflaggingIsLazy(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	a := seedRecord(t, repo, "/data/a.txt", "shared")
	b := seedRecord(t, repo, "/data/b.txt", "shared")
	if _, err := repo.UpdateDuplicateFlag(ctx, b); err != nil {
		t.Fatalf("UpdateDuplicateFlag: %v", err)
	}

	// b's content changes; its own write clears its flag, but a keeps the
	// stale true until reconciled.
	b.ContentHash = "changed"
	if err := repo.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if dup, err := repo.UpdateDuplicateFlag(ctx, b); err != nil || dup {
		t.Fatalf("UpdateDuplicateFlag after change: dup=%v err=%v", dup, err)
	}

	stale, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stale.Duplicate {
		t.Error("expected stale duplicate flag before reconcile")
	}

	if err := repo.ReconcileDuplicates(ctx); err != nil {
		t.Fatalf("ReconcileDuplicates: %v", err)
	}
	fixed, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fixed.Duplicate {
		t.Error("reconcile did not clear the stale flag")
	}
}

func TestUpdateDuplicateFlagEmptyHash(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	// Two records with empty hashes must not collapse together.
	a := seedRecord(t, repo, "/data/a.bin", "")
	seedRecord(t, repo, "/data/b.bin", "")

	dup, err := repo.UpdateDuplicateFlag(ctx, a)
	if err != nil {
		t.Fatalf("UpdateDuplicateFlag: %v", err)
	}
	if dup {
		t.Error("empty hash flagged as duplicate")
	}
}

func TestReconcileDuplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()

	a := seedRecord(t, repo, "/data/a.txt", "shared")
	b := seedRecord(t, repo, "/data/b.txt", "shared")
	c := seedRecord(t, repo, "/data/c.txt", "unique")
	d := seedRecord(t, repo, "/data/d.bin", "")
	e := seedRecord(t, repo, "/data/e.bin", "")

	if err := repo.ReconcileDuplicates(ctx); err != nil {
		t.Fatalf("ReconcileDuplicates: %v", err)
	}

	wantDup := map[string]bool{
		a.ID: true,
		b.ID: true,
		c.ID: false,
		d.ID: false,
		e.ID: false,
	}
	for id, want := range wantDup {
		rec, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID(%s): %v", id, err)
		}
		if rec.Duplicate != want {
			t.Errorf("record %s (%s): duplicate = %v, want %v", id, rec.Path, rec.Duplicate, want)
		}
	}
}

func TestListForAnalysis(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	now := time.Now()

	analyzed := now.Add(-time.Hour)
	records := []domain.FileRecord{
		// Eligible: never analyzed.
		{ID: uuid.New().String(), Path: "/new", ContentHash: "h1", Kind: domain.FileKindDoc, LastScanned: now},
		// Eligible: rescanned after last analysis.
		{ID: uuid.New().String(), Path: "/rescanned", ContentHash: "h2", Kind: domain.FileKindDoc, LastScanned: now, AIAnalyzedAt: &analyzed},
		// Ineligible: analysis is current.
		{ID: uuid.New().String(), Path: "/current", ContentHash: "h3", Kind: domain.FileKindDoc, LastScanned: analyzed.Add(-time.Hour), AIAnalyzedAt: &analyzed},
		// Ineligible: no fingerprint yet.
		{ID: uuid.New().String(), Path: "/unhashed", ContentHash: "", Kind: domain.FileKindDoc, LastScanned: now},
		// Ineligible: gone from disk.
		{ID: uuid.New().String(), Path: "/missing", ContentHash: "h4", Kind: domain.FileKindMissing, LastScanned: now},
	}
	for i := range records {
		if err := repo.Create(ctx, &records[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	recs, err := repo.ListForAnalysis(ctx, 10)
	if err != nil {
		t.Fatalf("ListForAnalysis: %v", err)
	}

	got := make(map[string]bool, len(recs))
	for _, r := range recs {
		got[r.Path] = true
	}
	if len(recs) != 2 || !got["/new"] || !got["/rescanned"] {
		t.Errorf("eligible set = %v, want {/new, /rescanned}", got)
	}
}

func TestGetByPathNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewFileRepository(db)

	if _, err := repo.GetByPath(context.Background(), "/nope"); err == nil {
		t.Error("expected error for unknown path, got nil")
	}
}

func TestRecordLockSerializesWriters(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))

	var active int32
	overlapped := false
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.WithRecordLock("same-record", func() error {
				if atomic.AddInt32(&active, 1) != 1 {
					mu.Lock()
					overlapped = true
					mu.Unlock()
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if overlapped {
		t.Error("two critical sections ran concurrently for the same record")
	}
	if n := repo.lockTableSize(); n != 0 {
		t.Errorf("lock table size = %d after contention drained, want 0", n)
	}
}

func TestRecordLockTablePruned(t *testing.T) {
	repo := NewFileRepository(newTestDB(t))

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("rec-%03d", i)
		if err := repo.WithRecordLock(id, func() error { return nil }); err != nil {
			t.Fatalf("WithRecordLock: %v", err)
		}
	}

	// Entries exist only while held or waited on; a long-lived daemon must
	// not accumulate one per record ever touched.
	if n := repo.lockTableSize(); n != 0 {
		t.Errorf("lock table size = %d, want 0", n)
	}
}
