package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/pipeline"
	"github.com/oskarw/filesentry/internal/repository"
	"gorm.io/gorm"
)

// FileHandler handles file-index endpoints, including the quarantine
// operations.
type FileHandler struct {
	fileRepo    *repository.FileRepository
	historyRepo *repository.LabelHistoryRepository
	isolation   *pipeline.IsolationManager
}

// NewFileHandler creates a new file handler.
// Parameters:
//   - fileRepo: file index repository.
//   - historyRepo: classification history repository.
//   - isolation: quarantine state machine.
// Returns:
//   - *FileHandler: initialized handler.
func NewFileHandler(fileRepo *repository.FileRepository, historyRepo *repository.LabelHistoryRepository, isolation *pipeline.IsolationManager) *FileHandler {
	return &FileHandler{
		fileRepo:    fileRepo,
		historyRepo: historyRepo,
		isolation:   isolation,
	}
}

// ListFiles handles GET /api/v1/files.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) ListFiles(c *gin.Context) {
	kind := domain.FileKind(c.Query("kind"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	files, err := h.fileRepo.List(c.Request.Context(), kind, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list files: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"files":  files,
		"limit":  limit,
		"offset": offset,
	})
}

// GetFile handles GET /api/v1/files/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) GetFile(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "File ID is required",
		})
		return
	}

	rec, err := h.fileRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "File not found",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// GetFileHistory handles GET /api/v1/files/:id/history.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) GetFileHistory(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.fileRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "File not found",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	history, err := h.historyRepo.ListByPath(c.Request.Context(), rec.Path, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load label history: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":    rec.Path,
		"history": history,
	})
}

// ReleaseRequest is the body for the release endpoint.
type ReleaseRequest struct {
	DestFolder string `json:"dest_folder" binding:"required"`
}

// Isolate handles POST /api/v1/files/:id/isolate.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) Isolate(c *gin.Context) {
	id := c.Param("id")

	if err := h.isolation.Isolate(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File isolated"})
}

// Release handles POST /api/v1/files/:id/release.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) Release(c *gin.Context) {
	id := c.Param("id")

	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.isolation.Release(c.Request.Context(), id, req.DestFolder); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File released"})
}

// Purge handles DELETE /api/v1/files/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *FileHandler) Purge(c *gin.Context) {
	id := c.Param("id")

	if err := h.isolation.Purge(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File purged"})
}
