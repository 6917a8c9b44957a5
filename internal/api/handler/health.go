package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startedAt = time.Now()

// Health reports liveness plus how long the daemon has been up.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "filesentry",
		"uptime_seconds": int64(time.Since(startedAt).Seconds()),
	})
}
