package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/fingerprint"
	"github.com/oskarw/filesentry/internal/repository"
	"gorm.io/gorm"
)

type consumerFixture struct {
	db        *gorm.DB
	queueRepo *repository.QueueRepository
	fileRepo  *repository.FileRepository
	errorRepo *repository.ErrorLogRepository
	consumer  *Consumer
}

func newConsumerFixture(t *testing.T, fp fingerprint.Fingerprinter) *consumerFixture {
	t.Helper()
	db := newTestDB(t)
	queueRepo := repository.NewQueueRepository(db)
	fileRepo := repository.NewFileRepository(db)
	errorRepo := repository.NewErrorLogRepository(db)
	if fp == nil {
		fp = fingerprint.NewEngine()
	}
	return &consumerFixture{
		db:        db,
		queueRepo: queueRepo,
		fileRepo:  fileRepo,
		errorRepo: errorRepo,
		consumer:  NewConsumer(queueRepo, fileRepo, errorRepo, fp, quietLogger(), nil),
	}
}

// failingFingerprinter simulates an unreadable file.
type failingFingerprinter struct{}

func (failingFingerprinter) Fingerprint(path, ext string) (string, error) {
	return "", errors.New("read locked.bin: permission denied")
}

func TestTickProcessesDocFile(t *testing.T) {
	fx := newConsumerFixture(t, nil)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	content := []byte("ten bytes!")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := fx.queueRepo.Enqueue(ctx, path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fx.consumer.Tick(ctx)

	rec, err := fx.fileRepo.GetByPath(ctx, path)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if rec.Kind != domain.FileKindDoc {
		t.Errorf("kind = %q, want doc", rec.Kind)
	}
	if rec.SizeBytes != int64(len(content)) {
		t.Errorf("size = %d, want %d", rec.SizeBytes, len(content))
	}
	if rec.Duplicate {
		t.Error("unique content flagged as duplicate")
	}
	sum := sha256.Sum256(content)
	if want := hex.EncodeToString(sum[:]); rec.ContentHash != want {
		t.Errorf("hash = %s, want %s", rec.ContentHash, want)
	}
	if rec.LastScanned.IsZero() {
		t.Error("last scanned not stamped")
	}

	pending, _ := fx.queueRepo.CountPending(ctx)
	if pending != 0 {
		t.Errorf("queue not drained: %d items left", pending)
	}
}

func TestTickHandlesMissingFile(t *testing.T) {
	fx := newConsumerFixture(t, nil)
	ctx := context.Background()

	// Enqueued, then deleted from disk before the tick runs.
	path := filepath.Join(t.TempDir(), "deleted.txt")
	if err := fx.queueRepo.Enqueue(ctx, path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fx.consumer.Tick(ctx)

	rec, err := fx.fileRepo.GetByPath(ctx, path)
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if rec.Kind != domain.FileKindMissing {
		t.Errorf("kind = %q, want missing", rec.Kind)
	}
	if rec.SizeBytes != 0 {
		t.Errorf("size = %d, want 0", rec.SizeBytes)
	}

	pending, _ := fx.queueRepo.CountPending(ctx)
	if pending != 0 {
		t.Errorf("missing file should succeed, %d items left", pending)
	}

	// A missing file is a valid terminal state, not a failure.
	count, err := fx.errorRepo.CountByPath(ctx, path)
	if err != nil {
		t.Fatalf("CountByPath: %v", err)
	}
	if count != 0 {
		t.Errorf("error log entries = %d, want 0", count)
	}
}

func TestTickReschedulesFailureWithBackoff(t *testing.T) {
	fx := newConsumerFixture(t, failingFingerprinter{})
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "locked.bin")
	if err := os.WriteFile(path, []byte("unreadable"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fx.queueRepo.Enqueue(ctx, path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	before := time.Now()
	fx.consumer.Tick(ctx)

	var items []domain.QueueItem
	if err := fx.db.Find(&items).Error; err != nil {
		t.Fatalf("load items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d queue items, want the rescheduled one", len(items))
	}
	item := items[0]
	if item.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", item.Attempts)
	}

	wantNotBefore := before.Add(5 * time.Minute)
	drift := item.NotBefore.Sub(wantNotBefore)
	if drift < -10*time.Second || drift > 10*time.Second {
		t.Errorf("notBefore = %v, want ≈ now+300s", item.NotBefore)
	}

	count, err := fx.errorRepo.CountByPath(ctx, path)
	if err != nil {
		t.Fatalf("CountByPath: %v", err)
	}
	if count != 1 {
		t.Errorf("error log entries = %d, want exactly 1", count)
	}

	// First failures stay normal priority; escalation needs repetition.
	entries, err := fx.errorRepo.ListByStatus(ctx, domain.ErrorStatusPending, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(entries) != 1 || entries[0].FilePriority != domain.PriorityNormal {
		t.Errorf("first failure priority = %d, want normal", entries[0].FilePriority)
	}
}

func TestRepeatedFailureEscalatesPriority(t *testing.T) {
	fx := newConsumerFixture(t, failingFingerprinter{})
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "locked.bin")
	if err := os.WriteFile(path, []byte("unreadable"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fx.queueRepo.Enqueue(ctx, path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Three ticks, rewinding the backoff between each so the item stays
	// ready.
	for i := 0; i < 3; i++ {
		fx.consumer.Tick(ctx)
		if err := fx.db.Model(&domain.QueueItem{}).
			Where("path = ?", path).
			Update("not_before", time.Now().Add(-time.Second)).Error; err != nil {
			t.Fatalf("rewind backoff: %v", err)
		}
	}

	var item domain.QueueItem
	if err := fx.db.First(&item, "path = ?", path).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", item.Attempts)
	}

	entries, err := fx.errorRepo.ListByStatus(ctx, domain.ErrorStatusPending, 10, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("error log entries = %d, want 3", len(entries))
	}
	// Newest first: the third failure carries high priority.
	if entries[0].FilePriority != domain.PriorityHigh {
		t.Errorf("third failure priority = %d, want high", entries[0].FilePriority)
	}
}

func TestIdenticalImagesFlaggedDuplicate(t *testing.T) {
	fx := newConsumerFixture(t, nil)
	ctx := context.Background()
	dir := t.TempDir()

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x/8+y/8)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{A: 255})
			}
		}
	}

	pngPath := filepath.Join(dir, "b.png")
	fPNG, err := os.Create(pngPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := png.Encode(fPNG, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	fPNG.Close()

	gifPath := filepath.Join(dir, "c.gif")
	fGIF, err := os.Create(gifPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gif.Encode(fGIF, img, nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	fGIF.Close()

	if err := fx.queueRepo.Enqueue(ctx, pngPath); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := fx.queueRepo.Enqueue(ctx, gifPath); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fx.consumer.Tick(ctx)

	recPNG, err := fx.fileRepo.GetByPath(ctx, pngPath)
	if err != nil {
		t.Fatalf("GetByPath png: %v", err)
	}
	recGIF, err := fx.fileRepo.GetByPath(ctx, gifPath)
	if err != nil {
		t.Fatalf("GetByPath gif: %v", err)
	}

	if recPNG.ContentHash != recGIF.ContentHash {
		t.Fatalf("hashes differ across encodings: %s != %s", recPNG.ContentHash, recGIF.ContentHash)
	}
	if !recPNG.Duplicate || !recGIF.Duplicate {
		t.Errorf("duplicate flags: png=%v gif=%v, want both true", recPNG.Duplicate, recGIF.Duplicate)
	}
}

// gateFingerprinter parks its first call until released so a test can
// interleave other work while the consumer is mid-item.
type gateFingerprinter struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateFingerprinter) Fingerprint(path, ext string) (string, error) {
	close(g.entered)
	<-g.release
	return "feedface", nil
}

func TestIsolateWaitsForInFlightConsumerItem(t *testing.T) {
	fp := &gateFingerprinter{entered: make(chan struct{}), release: make(chan struct{})}
	fx := newConsumerFixture(t, fp)
	ctx := context.Background()

	quarantine := filepath.Join(t.TempDir(), "quarantine")
	manager := NewIsolationManager(fx.fileRepo, quietLogger(), quarantine)

	dir := t.TempDir()
	path := filepath.Join(dir, "victim.txt")
	if err := os.WriteFile(path, []byte("contested"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec := &domain.FileRecord{
		ID:         uuid.New().String(),
		Path:       path,
		ParentPath: dir,
		Kind:       domain.FileKindDoc,
	}
	if err := fx.fileRepo.Create(ctx, rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if err := fx.queueRepo.Enqueue(ctx, path); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	tickDone := make(chan struct{})
	go func() {
		fx.consumer.Tick(ctx)
		close(tickDone)
	}()
	<-fp.entered

	// The consumer holds the record lock; a quarantine of the same record
	// must wait for it instead of interleaving.
	isolateDone := make(chan error, 1)
	go func() { isolateDone <- manager.Isolate(ctx, rec.ID) }()

	select {
	case err := <-isolateDone:
		t.Fatalf("Isolate finished while the consumer held the record (err=%v)", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(fp.release)
	<-tickDone
	if err := <-isolateDone; err != nil {
		t.Fatalf("Isolate: %v", err)
	}

	reloaded, err := fx.fileRepo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	wantPath := filepath.Join(quarantine, rec.ID, "victim.txt")
	if reloaded.Path != wantPath {
		t.Errorf("path = %q, want %q", reloaded.Path, wantPath)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("file not at indexed location: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still at original location: %v", err)
	}
	if reloaded.ContentHash != "feedface" {
		t.Errorf("hash = %q, want the fingerprint taken before the move", reloaded.ContentHash)
	}
}

func TestTickSkipsDirectoryPath(t *testing.T) {
	fx := newConsumerFixture(t, nil)
	ctx := context.Background()

	// An extensionless directory passes the extension filter; it must be
	// consumed as ineligible, not retried forever.
	dir := filepath.Join(t.TempDir(), "plaindir")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := fx.queueRepo.Enqueue(ctx, dir); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fx.consumer.Tick(ctx)

	pending, _ := fx.queueRepo.CountPending(ctx)
	if pending != 0 {
		t.Errorf("directory item not consumed: %d left", pending)
	}
	if _, err := fx.fileRepo.GetByPath(ctx, dir); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("directory gained an index record: %v", err)
	}
	count, err := fx.errorRepo.CountByPath(ctx, dir)
	if err != nil {
		t.Fatalf("CountByPath: %v", err)
	}
	if count != 0 {
		t.Errorf("error log entries = %d, want 0", count)
	}
}
