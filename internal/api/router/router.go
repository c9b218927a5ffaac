package router

import (
	"net/http"

	"github.com/ductran/service-agent/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())
	r.Use(handler.TenantMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "agent-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	api := r.Group("/api")
	{
		jobs := api.Group("/jobs")
		{
			// POST /api/jobs - Create a job (immediate or scheduled)
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/jobs - List the tenant's jobs with pagination
			jobs.GET("", jobHandler.GetJobs)

			// GET /api/jobs/:id - Get job details within the tenant
			jobs.GET("/:id", jobHandler.GetJobByID)
		}
	}

	return r
}
