package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/photolog/backend/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint; reports unhealthy when the database stops
	// answering. Deployments without a durable store skip the probe.
	r.GET("/health", func(c *gin.Context) {
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "photo-export-api",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "photo-export-api",
		})
	})

	exportHandler := handler.NewExportHandler(deps)
	photoHandler := handler.NewPhotoHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		exports := v1.Group("/exports")
		{
			// POST /api/v1/exports - Create a new export job
			exports.POST("", exportHandler.CreateExport)

			// GET /api/v1/exports - List retained jobs
			exports.GET("", exportHandler.ListExports)

			// GET /api/v1/exports/stats - Aggregate job statistics
			exports.GET("/stats", exportHandler.GetStats)

			// GET /api/v1/exports/kml - Synchronous KML convenience export
			exports.GET("/kml", exportHandler.ExportKML)

			// GET /api/v1/exports/kmz - Synchronous KMZ convenience export
			exports.GET("/kmz", exportHandler.ExportKMZ)

			// GET /api/v1/exports/:job_id/status - Poll job status
			exports.GET("/:job_id/status", exportHandler.GetStatus)

			// GET /api/v1/exports/:job_id/download - Fetch the artifact
			exports.GET("/:job_id/download", exportHandler.Download)

			// DELETE /api/v1/exports/:job_id - Cancel a job
			exports.DELETE("/:job_id", exportHandler.Cancel)
		}

		photos := v1.Group("/photos")
		{
			// POST /api/v1/photos - Upload a geotagged photo
			photos.POST("", photoHandler.UploadPhoto)

			// GET /api/v1/photos - List photos matching a filter
			photos.GET("", photoHandler.ListPhotos)
		}
	}

	return r
}
