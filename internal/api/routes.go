package api

import (
	"subject-choices/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, handler *Handler, tokens *auth.TokenManager) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(AuthMiddleware(tokens))
	{
		uploads := v1.Group("/uploads")
		uploads.POST("", handler.Upload)
		uploads.POST("/import", handler.Import)
		uploads.GET("", handler.ListUploads)
		uploads.GET("/:id", handler.GetUpload)
		uploads.DELETE("/:id", handler.DeleteUpload)
		uploads.GET("/:id/review", handler.FindUnmapped)
		uploads.POST("/:id/review", handler.ConfirmReview)
		uploads.POST("/:id/process", handler.Process)
		uploads.POST("/:id/recompute", handler.Recompute)
		uploads.GET("/:id/totals", handler.Totals)
		uploads.GET("/:id/coincidence", handler.Coincidence)

		v1.POST("/records/:id/toggle", handler.ToggleRecord)

		v1.GET("/summary/:year_group", handler.YearSummary)
		v1.GET("/compare", handler.Compare)
		v1.GET("/dashboard", handler.Dashboard)

		mappings := v1.Group("/mappings")
		mappings.GET("", handler.ListMappings)
		mappings.POST("", handler.SaveMapping)
		mappings.DELETE("/:id", handler.DeleteMapping)
		mappings.GET("/builtin/:year_group", handler.BuiltinMappings)
	}
}
