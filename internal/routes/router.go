package routes

import (
	"github.com/gin-gonic/gin"

	"taskboard/internal/controller"
	"taskboard/internal/middleware"
)

func Router(h *controller.Handler, jwtSecret string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog())

	// Health for load balancers and K8s probes
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)

	v1 := router.Group("/v1")
	v1.GET("/ping", h.Ping)

	// Protected: JWT required
	api := v1.Group("")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		api.GET("/tasks", h.ListTasks)
		api.POST("/tasks", h.CreateTask)
		api.POST("/tasks/batch", h.Batch)
		api.PUT("/tasks/:id", h.UpdateTask)
		api.DELETE("/tasks/:id", h.DeleteTask)
	}

	return router
}
