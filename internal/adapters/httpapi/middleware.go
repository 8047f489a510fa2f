package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mexcGuardBot/internal/ports"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags each request with an ID, echoes it in the response and
// puts it on the request context so every log line of the request carries it.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(ports.WithTraceID(c.Request.Context(), requestID))
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log ports.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn(c.Request.Context(), "HTTP request failed", fields)
			return
		}
		log.Debug(c.Request.Context(), "HTTP request", fields)
	}
}

// RateLimitMiddleware rejects requests above perSecond with 429.
func RateLimitMiddleware(perSecond float64) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
