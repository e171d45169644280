package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"infra-risk-api/services"
)

// RegisterRoutes mounts the risk API on r.
func RegisterRoutes(r gin.IRouter, rh *RiskHandler, cache *services.CacheService, auth TokenValidator) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"message": "Infrastructure Risk API is running",
			"cache":   cache.Available(),
		})
	})

	api := r.Group("/api")
	{
		api.GET("/predict-risk", rh.GetPredictions)
		api.GET("/predict-risk/summary", rh.GetSummary)
		api.GET("/projects/:id/risk", rh.GetProjectRisk)
		api.GET("/projects/:id/risk/history", rh.GetHistory)
	}

	r.GET("/ws/risk", RiskWebSocket(cache, auth))
}
