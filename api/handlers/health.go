package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mercure/services"
)

// HealthCheck reports how campaign launches are scheduled: through the
// broker or only by the cron sweep.
func HealthCheck(s *services.Services) gin.HandlerFunc {
	scheduler := "sweep"
	if s.EventsService != nil {
		scheduler = "rabbitmq"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"scheduler": scheduler,
		})
	}
}
