// Package httpmw holds gin middleware shared by the bridge's HTTP surfaces.
package httpmw

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kandev/oauthbridge/internal/common/logger"
	"go.uber.org/zap"
)

// RequestLogger logs each request after the handler completes.
// Query strings are never logged; they carry authorization codes.
func RequestLogger(log *logger.Logger, serverName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := c.Writer.Status()
		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}
		fields := []zap.Field{
			zap.String("server", serverName),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes", size),
		}

		if status >= 500 {
			log.Error("http", fields...)
		} else {
			log.Debug("http", fields...)
		}
	}
}
