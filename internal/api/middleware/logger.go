package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oskarw/filesentry/internal/logger"
)

const loggerKey = "logger"

// RequestLogger tags every request with a generated request ID, stores a
// request-scoped logger in both the request context and the gin context, and
// logs start and completion. The request ID is echoed in the X-Request-ID
// response header so clients can quote it in bug reports.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.New().String()

		reqLog := log.WithFields(logger.Fields{
			logger.FieldRequestID: requestID,
			logger.FieldComponent: "api",
		})
		ctx := reqLog.WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Set(loggerKey, reqLog)
		c.Header("X-Request-ID", requestID)

		method := c.Request.Method
		path := c.Request.URL.Path
		reqLog.Infof("Request started: method=%s, path=%s, client_ip=%s",
			method, path, c.ClientIP())

		c.Next()

		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		logger.With(logger.Fields{
			logger.FieldStatus:     c.Writer.Status(),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldSize:       c.Writer.Size(),
		}).Info(ctx, "Request completed: method=%s, path=%s", method, path)
	}
}

// GetLogger returns the request-scoped logger, falling back to whatever the
// request context carries.
func GetLogger(c *gin.Context) *logger.Logger {
	if l, ok := c.Get(loggerKey); ok {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	return logger.FromContext(c.Request.Context())
}
