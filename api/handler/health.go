package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvester/models"
	"github.com/use-agent/harvester/scrape"
)

// Health returns the handler for GET /api/v1/health.
//
// Reports gate utilisation and degrades status when more than 80% of
// the concurrency budget is in use.
func Health(gate *scrape.Gate, maxConcurrent int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		active := gate.InUse()

		status := "healthy"
		if maxConcurrent > 0 && active > int(float64(maxConcurrent)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:         status,
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			ActiveSessions: active,
			Version:        "0.1.0",
		})
	}
}
