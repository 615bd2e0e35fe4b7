package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/invoice-parser/app/controllers"
	"go.uber.org/zap"
)

// SetupAPIRoutes registers the /v1 API
func SetupAPIRoutes(router *gin.Engine, documentController *controllers.DocumentController, adminController *controllers.AdminController) {
	v1 := router.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("/process", documentController.Process)
			documents.POST("/sections/:section/process", documentController.ProcessSection)
			documents.POST("/completeness", documentController.Completeness)
			documents.POST("/usable", documentController.Usable)
			documents.POST("/jobs", documentController.SubmitJob)
			documents.GET("/jobs/:jobID/status", documentController.GetJobStatus)
			documents.GET("/jobs/:jobID/results", documentController.GetJobResults)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/reviews", adminController.ListReviews)
			admin.POST("/reviews/:id/approve", adminController.ApproveReview)
			admin.POST("/reviews/:id/reject", adminController.RejectReview)
			admin.POST("/cache/clear", adminController.ClearCache)
			admin.GET("/stats", adminController.GetStats)
		}

		v1.GET("/health", documentController.HealthCheck)
	}
}

// SetupHealthRoutes registers the probes
func SetupHealthRoutes(router *gin.Engine, documentController *controllers.DocumentController) {
	router.GET("/health", documentController.HealthCheck)
	router.GET("/ready", documentController.HealthCheck)
	router.GET("/live", documentController.HealthCheck)
}

// SetupAllRoutes installs middleware and every route group. A nil logger
// disables the access log.
func SetupAllRoutes(router *gin.Engine, documentController *controllers.DocumentController, adminController *controllers.AdminController, logger *zap.Logger) {
	router.Use(gin.Recovery(), RequestID())
	if logger != nil {
		router.Use(AccessLog(logger))
	}

	SetupWebRoutes(router)
	SetupHealthRoutes(router, documentController)
	SetupAPIRoutes(router, documentController, adminController)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})
}
