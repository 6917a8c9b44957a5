package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/pipeline"
	"github.com/oskarw/filesentry/internal/repository"
)

// ScanHandler triggers on-demand active scans and reports queue health.
type ScanHandler struct {
	scanner   *pipeline.ActiveScanner
	queueRepo *repository.QueueRepository
	fileRepo  *repository.FileRepository
	logger    *logger.Logger

	// Scan job state
	mu            sync.RWMutex
	isRunning     bool
	lastEnqueued  int64
	lastRunTime   time.Time
	lastRunStatus string
}

// NewScanHandler creates a new scan handler.
// Parameters:
//   - scanner: active scanner instance.
//   - queueRepo: queue repository for stats.
//   - fileRepo: file repository for stats.
//   - log: logger instance.
// Returns:
//   - *ScanHandler: initialized handler.
func NewScanHandler(scanner *pipeline.ActiveScanner, queueRepo *repository.QueueRepository, fileRepo *repository.FileRepository, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		scanner:   scanner,
		queueRepo: queueRepo,
		fileRepo:  fileRepo,
		logger:    log,
	}
}

// ScanStatusResponse represents the scan job status.
type ScanStatusResponse struct {
	IsRunning     bool   `json:"is_running"`
	LastEnqueued  int64  `json:"last_enqueued"`
	LastRunTime   string `json:"last_run_time,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
}

// TriggerScan handles POST /api/v1/scan.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) TriggerScan(c *gin.Context) {
	ctx := c.Request.Context()

	h.mu.RLock()
	if h.isRunning {
		h.mu.RUnlock()
		logger.CtxWarn(ctx, "Scan request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Scan is already running"})
		return
	}
	h.mu.RUnlock()

	h.mu.Lock()
	h.isRunning = true
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting on-demand scan: client_ip=%s", c.ClientIP())

	// Use a background context so the walk survives the HTTP request.
	go func() {
		enqueued := h.scanner.Run(context.Background())

		h.mu.Lock()
		h.isRunning = false
		h.lastEnqueued = enqueued
		h.lastRunTime = time.Now()
		h.lastRunStatus = "success"
		h.mu.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Scan started"})
}

// GetScanStatus handles GET /api/v1/scan/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) GetScanStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := ScanStatusResponse{
		IsRunning:     h.isRunning,
		LastEnqueued:  h.lastEnqueued,
		LastRunStatus: h.lastRunStatus,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// GetStats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ScanHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()

	pending, err := h.queueRepo.CountPending(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ready, err := h.queueRepo.CountReady(ctx, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stats := gin.H{
		"queue": gin.H{
			"pending": pending,
			"ready":   ready,
		},
	}
	if oldest, err := h.queueRepo.OldestNotBefore(ctx); err == nil && oldest != nil {
		stats["queue"].(gin.H)["oldest_not_before"] = oldest.Format(time.RFC3339)
	}

	byKind := gin.H{}
	for _, kind := range []domain.FileKind{
		domain.FileKindImage, domain.FileKindVideo, domain.FileKindDoc,
		domain.FileKindOther, domain.FileKindMissing,
	} {
		count, err := h.fileRepo.CountByKind(ctx, kind)
		if err != nil {
			continue
		}
		byKind[string(kind)] = count
	}
	stats["files_by_kind"] = byKind

	c.JSON(http.StatusOK, stats)
}
