package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omnifs/omnifs/internal/logger"
)

// RequestLogger logs one line per request with status, size, and timing.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("%s %s status=%d size=%d duration=%s",
			c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), c.Writer.Size(), time.Since(start))
	}
}
