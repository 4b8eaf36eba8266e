package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// GinMiddleware traces inbound HTTP requests. Health and metrics probes
// are excluded so scrapes do not flood the trace backend.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithGinFilter(func(c *gin.Context) bool {
			path := c.Request.URL.Path
			return path != "/health" && path != "/metrics"
		}),
	)
}
