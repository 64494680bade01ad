package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/tokens"
)

const requestIDHeader = "X-Request-ID"

// cors allows any origin on every response, 404s included, and answers
// preflight requests itself. The chat endpoint only takes JSON posts; the
// rest of the API also accepts GET and a bearer token.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		methods, headers := "GET, POST, OPTIONS", "Content-Type, Authorization"
		if c.Request.URL.Path == "/api/chat" {
			methods, headers = "POST, OPTIONS", "Content-Type"
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", headers)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// adminAuth requires a bearer token signed with secret and carrying the
// ADMIN role. The verified claims are stored under "claims".
func adminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Admin API disabled"})
			return
		}
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		claims, err := tokens.Verify(secret, strings.TrimSpace(raw))
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("admin token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if tokens.Role(claims) != tokens.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Set("claims", map[string]any(claims))
		c.Next()
	}
}

// requestLogger tags the request context with a request id and logs the outcome.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = logger.NewRequestID()
		}
		c.Header(requestIDHeader, id)
		ctx := logger.WithContext(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logger.FromContext(ctx).Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// requestTimeout bounds the whole request, provider stream included.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
