package router

import (
	"compliance-stream/src/config"
	"compliance-stream/src/controller"
	"compliance-stream/src/middleware"
	"compliance-stream/src/rabbitmq"
	"compliance-stream/src/service"

	"github.com/gin-gonic/gin"
	swaggoFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// NewRouter wires the controllers and middleware into a gin engine.
func NewRouter(cfg *config.GlobalConfig, authService *service.AuthService, hub *service.Hub, publisher rabbitmq.Publisher) *gin.Engine {
	router := gin.Default()

	authController := controller.NewAuthController(authService)
	streamController := controller.NewStreamController(hub, cfg.KeepaliveInterval)
	adminController := controller.NewAdminController(publisher)

	router.POST("/auth/login", authController.Login)
	router.POST("/auth/logout", middleware.AuthRequiredMiddleware(authService), authController.Logout)
	router.GET("/auth/me", middleware.AuthRequiredMiddleware(authService), authController.Me)

	// The stream endpoint authenticates via query parameter because the
	// browser EventSource API cannot send an Authorization header.
	router.GET("/task-stream/", middleware.StreamAuthMiddleware(authService), streamController.Stream)

	router.POST("/admin/tasks/publish",
		middleware.AuthRequiredMiddleware(authService),
		middleware.RequirePermission("admin"),
		adminController.PublishTaskUpdate)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggoFiles.Handler))

	return router
}
