package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/health"
)

// HealthHandler exposes the health check endpoint.
type HealthHandler struct {
	checker *health.HealthChecker
}

func NewHealthHandler(checker *health.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// HandleHealth serves GET /health. Unhealthy systems answer 503 so load
// balancers rotate the instance out.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	overall := h.checker.CheckAll(c.Request.Context())
	status := http.StatusOK
	if overall.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, overall)
}
