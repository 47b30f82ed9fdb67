package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	rdb *redis.Client
}

// NewHealthHandler creates a new HealthHandler. rdb may be nil when redis is not configured.
func NewHealthHandler(rdb *redis.Client) *HealthHandler {
	return &HealthHandler{rdb: rdb}
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

// Health returns 200 while the process is serving
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready reports whether the backing services are reachable
func (h *HealthHandler) Ready(c *gin.Context) {
	response := ReadyResponse{Status: "ok", Redis: "disabled"}
	statusCode := http.StatusOK

	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		response.Redis = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			response.Redis = "error"
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, response)
}
