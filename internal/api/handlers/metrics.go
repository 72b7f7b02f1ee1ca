package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/minecraft-server-manager/internal/metrics"
)

// MetricsHandler serves the latest fleet snapshot
type MetricsHandler struct {
	collector *metrics.Collector
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(collector *metrics.Collector) *MetricsHandler {
	return &MetricsHandler{collector: collector}
}

// GetMetrics returns the most recent fleet sample
// GET /api/v1/metrics
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.Latest())
}
