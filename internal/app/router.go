package app

import (
	"lifecircle_backend/docs"
	"lifecircle_backend/internal/config"
	"lifecircle_backend/internal/middleware"
	"lifecircle_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/users/search", c.user.SearchUsers)

		connections := authGroup.Group("/connections")
		{
			connections.POST("/requests", c.connection.SendRequest)
			connections.POST("/requests/:id/accept", c.connection.AcceptRequest)
			connections.GET("/requests/pending", c.connection.ListPendingRequests)
			connections.GET("", c.connection.ListConnections)
			connections.GET("/ids", c.connection.ConnectedIDs)
			connections.GET("/status", c.connection.ConnectionStatuses)
			connections.PUT("/:targetId/categories", c.connection.UpdateCategoryFlags)
			connections.DELETE("/:targetId", c.connection.DeleteConnection)
		}
	}
}
