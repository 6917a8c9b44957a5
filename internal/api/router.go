package api

import (
	"github.com/gin-gonic/gin"
	"github.com/oskarw/filesentry/internal/api/handler"
	"github.com/oskarw/filesentry/internal/api/middleware"
	"github.com/oskarw/filesentry/internal/logger"
	"github.com/oskarw/filesentry/internal/pipeline"
	"github.com/oskarw/filesentry/internal/repository"
)

// Deps bundles everything the router's handlers touch.
type Deps struct {
	FileRepo    *repository.FileRepository
	QueueRepo   *repository.QueueRepository
	ErrorRepo   *repository.ErrorLogRepository
	HistoryRepo *repository.LabelHistoryRepository
	Isolation   *pipeline.IsolationManager
	Scanner     *pipeline.ActiveScanner
	Logger      *logger.Logger
	CORS        middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps *Deps, mode string) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	// Create handlers
	fileHandler := handler.NewFileHandler(deps.FileRepo, deps.HistoryRepo, deps.Isolation)
	errorHandler := handler.NewErrorLogHandler(deps.ErrorRepo)
	scanHandler := handler.NewScanHandler(deps.Scanner, deps.QueueRepo, deps.FileRepo, deps.Logger)

	// Health check
	r.GET("/health", handler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// File index
		v1.GET("/files", fileHandler.ListFiles)
		v1.GET("/files/:id", fileHandler.GetFile)
		v1.GET("/files/:id/history", fileHandler.GetFileHistory)

		// Quarantine
		v1.POST("/files/:id/isolate", fileHandler.Isolate)
		v1.POST("/files/:id/release", fileHandler.Release)
		v1.DELETE("/files/:id", fileHandler.Purge)

		// Error log
		v1.GET("/errors", errorHandler.ListErrors)

		// Scanning
		v1.POST("/scan", scanHandler.TriggerScan)
		v1.GET("/scan/status", scanHandler.GetScanStatus)

		// Stats
		v1.GET("/stats", scanHandler.GetStats)
	}

	return r
}
