package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kanselarij/public-export-service/app/cfg"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler) {
	r.POST("/export/:uuid", handler.ScheduleExport)
	r.GET("/export/:uuid", handler.GetJob)

	r.GET("/health", handler.GetHealth)

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"service":     "public-export-service",
			"version":     cfg.GetVersion(),
			"description": "Exports public meeting records as versioned Turtle files",
			"endpoints": map[string]string{
				"schedule": "POST /export/<session-uuid>",
				"status":   "GET /export/<job-uuid>",
				"health":   "GET /health",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
