package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/monitoring"
)

// Health reports readiness of the service and its dependencies. A nil manager always reports ok.
func Health(manager *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}

		report := manager.Evaluate(requestContext(c))
		status := http.StatusOK
		label := "ok"
		if !report.Success {
			status = http.StatusServiceUnavailable
			label = string(report.Status)
		}

		c.JSON(status, gin.H{
			"status":     label,
			"checks":     report.Checks,
			"checked_at": time.Now().UTC(),
		})
	}
}
