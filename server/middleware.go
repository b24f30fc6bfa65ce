package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// APIKeyHeader carries the shared secret.
	APIKeyHeader = "X-API-Key"
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// ProofKeyHeader and DataHashHeader describe an issued proof.
	ProofKeyHeader = "X-Proof-Key"
	DataHashHeader = "X-Data-Hash"

	requestIDKey = "minhash_request_id"
)

func corsConfig(origins []string) cors.Config {
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", APIKeyHeader, RequestIDHeader},
		ExposeHeaders:    []string{ProofKeyHeader, DataHashHeader, RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
}

// RequestID propagates an incoming X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string { return c.GetString(requestIDKey) }

// APIKeyAuth rejects requests whose X-API-Key does not match key. CORS
// preflight requests pass through.
func APIKeyAuth(key string, logger *slog.Logger) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(APIKeyHeader))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			logger.WarnContext(c.Request.Context(), "rejected api key",
				"client_ip", c.ClientIP(), "path", c.Request.URL.Path, "request_id", requestID(c))
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "invalid API key", RequestID: requestID(c)})
			return
		}
		c.Next()
	}
}

// RequireReady answers 503 until ready reports true.
func RequireReady(ready func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ready() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Error: "index is rehydrating", RequestID: requestID(c)})
			return
		}
		c.Next()
	}
}

// RequestLogger logs every request at debug level.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.DebugContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started),
			"request_id", requestID(c))
	}
}
