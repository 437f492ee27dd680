package observability

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// routePath returns the registered route so metric labels stay bounded.
func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}

// ObserveRequests logs and counts every request served for component. A
// websocket upgrade is reported when its link ends, so its duration is the
// link lifetime.
func ObserveRequests(component string) gin.HandlerFunc {
	logger := log.Logger.With().Str("component", component).Logger()
	return func(c *gin.Context) {
		start := time.Now()
		upgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
		c.Next()

		status := c.Writer.Status()
		path := routePath(c)
		elapsed := time.Since(start)
		RecordHTTPRequest(component, c.Request.Method, path, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Bool("upgrade", upgrade).
			Dur("duration", elapsed).
			Msg("http_request")
	}
}
