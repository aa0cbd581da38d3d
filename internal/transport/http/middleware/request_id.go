package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/customer-identity/internal/infra/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID puts a correlation id on the request context, where logger.WithContext picks it up.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

		c.Next()
	}
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(logger.RequestIDKey{}).(string)
	return id
}
