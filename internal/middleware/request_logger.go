package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestLogger logs one structured line per HTTP request once its handler
// returns. The websocket route is logged right after the upgrade: the
// connection itself lives on in the relay's pumps.
func RequestLogger(logger log.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"latency": time.Since(start).Round(time.Microsecond),
			"client":  c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("❌ Request failed")
		case status >= 400:
			entry.Warn("⚠️  Request rejected")
		default:
			entry.Debug("HTTP request")
		}
	}
}
