package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/invoice-parser/app/controllers"
)

// SetupWebRoutes registers the index and the endpoint listing
func SetupWebRoutes(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "Invoice Parser Service",
			"version": controllers.Version,
			"docs":    "/docs",
		})
	})

	router.GET("/docs", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"api": "Invoice Parser API v1",
			"endpoints": map[string]string{
				"process":      "POST /v1/documents/process",
				"section":      "POST /v1/documents/sections/:section/process",
				"completeness": "POST /v1/documents/completeness",
				"usable":       "POST /v1/documents/usable",
				"batch":        "POST /v1/documents/jobs",
				"job_status":   "GET /v1/documents/jobs/:jobID/status",
				"job_results":  "GET /v1/documents/jobs/:jobID/results",
				"reviews":      "GET /v1/admin/reviews",
				"cache_clear":  "POST /v1/admin/cache/clear",
				"stats":        "GET /v1/admin/stats",
				"health":       "GET /health",
			},
		})
	})
}
