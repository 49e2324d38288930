package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postnow/server/internal/utils/metrics"
)

// Metrics returns a middleware that records HTTP metrics.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath() // route pattern, not actual path
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		m.ObserveHTTPRequest(method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
