package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/villain-cms/villain/internal/user"
	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

const claimsKey = "villain.claims"

func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.Writer.Header().Get(RequestIDHeader),
		)
	}
}

// optionalAuth validates a bearer token when one is sent. Requests without
// a token pass through anonymous.
func optionalAuth(tokens *user.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if tokens == nil || header == "" {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Kind:    verrors.CodeUnauthorized.String(),
				Message: "authorization header must carry a bearer token",
			})
			return
		}
		claims, err := tokens.Validate(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Kind:    verrors.CodeUnauthorized.String(),
				Message: "invalid or expired token",
			})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}
