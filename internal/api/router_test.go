package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/pipeline"
	"github.com/oskarw/filesentry/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) (*gorm.DB, http.Handler, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := logger.New(&logger.Config{Level: "error", Format: "json", Output: io.Discard})
	fileRepo := repository.NewFileRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	quarantine := filepath.Join(t.TempDir(), "quarantine")

	router := SetupRouter(&Deps{
		FileRepo:    fileRepo,
		QueueRepo:   queueRepo,
		ErrorRepo:   repository.NewErrorLogRepository(db),
		HistoryRepo: repository.NewLabelHistoryRepository(db),
		Isolation:   pipeline.NewIsolationManager(fileRepo, log, quarantine),
		Scanner: pipeline.NewActiveScanner(queueRepo, log, &pipeline.ScannerConfig{
			Roots: []string{t.TempDir()},
		}),
		Logger: log,
	}, "test")
	return db, router, quarantine
}

func TestHealthEndpoint(t *testing.T) {
	_, router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestGetFileNotFound(t *testing.T) {
	_, router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/"+uuid.New().String(), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestIsolateAndReleaseOverHTTP(t *testing.T) {
	db, router, quarantine := newTestRouter(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "evil.txt")
	if err := os.WriteFile(path, []byte("bad"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec := &domain.FileRecord{
		ID:         uuid.New().String(),
		Path:       path,
		ParentPath: dir,
		Kind:       domain.FileKindDoc,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/"+rec.ID+"/isolate", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("isolate status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, err := os.Stat(filepath.Join(quarantine, rec.ID, "evil.txt")); err != nil {
		t.Fatalf("file not quarantined: %v", err)
	}

	restore := filepath.Join(t.TempDir(), "restore")
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/files/"+rec.ID+"/release",
		strings.NewReader(`{"dest_folder":"`+restore+`"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("release status = %d, body = %s", w.Code, w.Body.String())
	}

	var reloaded domain.FileRecord
	if err := db.First(&reloaded, "id = ?", rec.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if want := filepath.Join(restore, "evil.txt"); reloaded.Path != want {
		t.Errorf("path = %q, want %q", reloaded.Path, want)
	}
}

func TestStatsEndpoint(t *testing.T) {
	db, router, _ := newTestRouter(t)

	queueRepo := repository.NewQueueRepository(db)
	if err := queueRepo.Enqueue(context.Background(), "/data/a.txt"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Queue struct {
			Pending int64 `json:"pending"`
		} `json:"queue"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Queue.Pending != 1 {
		t.Errorf("pending = %d, want 1", body.Queue.Pending)
	}
}
