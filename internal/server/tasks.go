package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerJob runs one scheduler job synchronously on demand. When the
// process runs without a scheduler the endpoint reports unavailable.
func (s *Server) TriggerJob(c *gin.Context) {
	if s.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"type":    "unavailable",
				"message": "scheduler is not running in this process",
			},
		})
		return
	}

	name := c.Param("name")
	if err := s.scheduler.Trigger(c.Request.Context(), name); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "job completed",
		"job":     name,
		"status":  "completed",
	})
}
