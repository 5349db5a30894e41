package middleware

import (
	"time"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/DeskShell/backend/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// RequestID tags every request with an ID, reusing the caller's when it
// sends a valid one, and logs the request once it completes.
func RequestID(logger *zap.Logger) gin.HandlerFunc {
	log := logging.OrNop(logger)

	return func(c *gin.Context) {
		reqID := id.RequestID(c.GetHeader(RequestIDHeader))
		if !validRequestID(reqID) {
			reqID = id.NewRequestID()
		}
		c.Set(RequestIDKey, reqID)
		c.Header(RequestIDHeader, reqID.String())

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", reqID.String()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Error(c.Errors.Last()))
		}
		log.Debug("HTTP request", fields...)
	}
}

// GetRequestID returns the request ID assigned by RequestID.
func GetRequestID(c *gin.Context) id.RequestID {
	if v, ok := c.Get(RequestIDKey); ok {
		if reqID, ok := v.(id.RequestID); ok {
			return reqID
		}
	}
	return ""
}

func validRequestID(reqID id.RequestID) bool {
	s := reqID.String()
	prefix := id.RequestPrefix + "_"
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return false
	}
	return id.IsValid(s[len(prefix):])
}
