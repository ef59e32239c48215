package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"winescan/internal/api"
	"winescan/internal/logging"
	"winescan/internal/services"
)

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
)

func recoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic recovered",
					logging.Any("panic", recovered),
					logging.String("path", c.Request.URL.Path),
					logging.String("method", c.Request.Method))
				c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{
					Error:     "internal server error",
					RequestID: c.GetString(requestIDKey),
				})
			}
		}()
		c.Next()
	}
}

// requestIDMiddleware honours an incoming X-Request-ID or assigns a UUID, and
// threads it through the request context for log correlation.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(headerRequestID, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLogMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
			logging.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, logging.String("errors", c.Errors.String()))
		}
		log := logging.WithContext(c.Request.Context(), logger)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("http request failed", logging.Args(attrs...)...)
		case strings.HasPrefix(c.Request.URL.Path, "/healthz"), c.Request.URL.Path == "/metrics":
			log.Debug("http request", logging.Args(attrs...)...)
		default:
			log.Info("http request", logging.Args(attrs...)...)
		}
	}
}

// authMiddleware validates bearer tokens. An empty token disables
// authentication.
func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			writeError(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
