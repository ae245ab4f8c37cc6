package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/richxcame/ride-dispatch/pkg/logger"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID tags every request with a correlation id, reusing the caller's
// if present, and propagates it through the request context for logging.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := context.WithValue(c.Request.Context(), logger.CorrelationIDKey, id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}
