package http

import (
	"github.com/chainsona/cpop-sub000/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RouterConfig holds what the router needs beyond the auth service
type RouterConfig struct {
	Cookies    CookieConfig
	Production bool
	Redis      *redis.Client
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, config RouterConfig, logger *zap.Logger) *gin.Engine {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(logger))

	health := NewHealthHandler(config.Redis)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)

	handlers := NewAuthHandlers(authService, config.Cookies, logger)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.GET("/challenge", handlers.Challenge)
		auth.POST("/session", handlers.SignIn)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, config.Cookies, logger))
	{
		api.GET("/me", handlers.Me)
	}

	return router
}
