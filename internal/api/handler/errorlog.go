package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/repository"
)

// ErrorLogHandler exposes the failure audit trail.
type ErrorLogHandler struct {
	errorRepo *repository.ErrorLogRepository
}

// NewErrorLogHandler creates a new error-log handler.
// Parameters:
//   - errorRepo: error-log repository.
// Returns:
//   - *ErrorLogHandler: initialized handler.
func NewErrorLogHandler(errorRepo *repository.ErrorLogRepository) *ErrorLogHandler {
	return &ErrorLogHandler{errorRepo: errorRepo}
}

// ListErrors handles GET /api/v1/errors.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ErrorLogHandler) ListErrors(c *gin.Context) {
	status := domain.ErrorStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.errorRepo.ListByStatus(c.Request.Context(), status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list errors: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"errors": entries,
		"limit":  limit,
		"offset": offset,
	})
}
