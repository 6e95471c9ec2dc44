package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

func RequestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}
		c.Set(CtxRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"client_ip", c.ClientIP(),
			"latency", time.Since(start).String(),
		}
		if uid, ok := c.Get(CtxUserID); ok {
			fields = append(fields, "user_id", uid)
		}
		switch {
		case status >= 500:
			log.Errorw("[http][request]", fields...)
		case status >= 400:
			log.Warnw("[http][request]", fields...)
		default:
			log.Infow("[http][request]", fields...)
		}
	}
}
