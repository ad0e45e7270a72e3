package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-offline/internal/core/port"
)

// HealthHandler exposes liveness information.
type HealthHandler struct {
	startedAt time.Time
	monitor   port.ConnectivityMonitor
}

// NewHealthHandler builds a new health handler instance.
func NewHealthHandler(monitor port.ConnectivityMonitor) *HealthHandler {
	return &HealthHandler{startedAt: time.Now().UTC(), monitor: monitor}
}

// Status returns the agent status, connectivity and start time.
func (h *HealthHandler) Status(c *gin.Context) {
	online := true
	if h.monitor != nil {
		online = h.monitor.Online(c.Request.Context())
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Online:    online,
		StartedAt: h.startedAt,
	})
}
