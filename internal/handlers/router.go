package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

func NewRouter(handler *WorkflowHandler, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(log), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("Handler panicked", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(500, models.NewErrorResponse("INTERNAL_ERROR", "Internal server error", ""))
	}))

	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/search", handler.Search)
		v1.GET("/workflows/:id", handler.GetWorkflow)
		v1.GET("/stats", handler.GetStats)
	}

	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = models.GenerateRequestID()
		}
		c.Header("X-Request-ID", requestID)

		c.Next()

		log.WithFields(logger.Fields{
			"request_id":  requestID,
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(startTime).Milliseconds(),
			"client_ip":   c.ClientIP(),
		}).Info("HTTP request")
	}
}
