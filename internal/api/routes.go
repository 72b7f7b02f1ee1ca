package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/minecraft-server-manager/internal/api/handlers"
	"github.com/yourusername/minecraft-server-manager/internal/api/middleware"
	"github.com/yourusername/minecraft-server-manager/internal/auth"
	"github.com/yourusername/minecraft-server-manager/internal/config"
	"github.com/yourusername/minecraft-server-manager/internal/console"
	"github.com/yourusername/minecraft-server-manager/internal/database"
	"github.com/yourusername/minecraft-server-manager/internal/instance"
	"github.com/yourusername/minecraft-server-manager/internal/metrics"
	"github.com/yourusername/minecraft-server-manager/internal/websocket"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(
	cfg *config.Config,
	db *database.DB,
	manager *instance.Manager,
	recorder *database.Recorder,
	hub *websocket.Hub,
	scrollback *console.Store,
	collector *metrics.Collector,
) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.Security.CORS))
	router.Use(middleware.RateLimit(cfg.Security.RateLimit.Enabled, cfg.Security.RateLimit.RequestsPerMinute))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.ContentSecurityPolicy(cfg.Logging.Level == "debug"))

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		parseDuration(cfg.Auth.AccessTokenDuration),
		parseDuration(cfg.Auth.RefreshTokenDuration),
	)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db.DB, jwtManager, cfg.Auth.BcryptCost)
	instanceHandler := handlers.NewInstanceHandler(manager, recorder, scrollback)
	backupHandler := handlers.NewBackupHandler(manager, recorder)
	consoleHandler := handlers.NewConsoleHandler(manager, hub, scrollback, cfg.Security.CORS.AllowedOrigins)
	metricsHandler := handlers.NewMetricsHandler(collector)

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/auth/setup-status", authHandler.SetupStatus)
		public.POST("/auth/setup", authHandler.SetupInitialAdmin)
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/refresh", authHandler.RefreshToken)
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.Auth(jwtManager))
	{
		// Auth routes
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.GetCurrentUser)

		// Instance routes
		instances := protected.Group("/instances")
		{
			instances.GET("", instanceHandler.ListInstances)
			instances.POST("", instanceHandler.CreateInstance)
			instances.GET(":id", instanceHandler.GetInstance)
			instances.PUT(":id", instanceHandler.UpdateInstance)
			instances.DELETE(":id", instanceHandler.DeleteInstance)

			instances.POST(":id/start", instanceHandler.StartInstance)
			instances.POST(":id/stop", instanceHandler.StopInstance)
			instances.POST(":id/restart", instanceHandler.RestartInstance)
			instances.GET(":id/status", instanceHandler.GetStatus)
			instances.GET(":id/players", instanceHandler.GetPlayers)
			instances.POST(":id/command", instanceHandler.ExecuteCommand)
			instances.POST(":id/admin-command", instanceHandler.ExecuteAdminCommand)
			instances.GET(":id/events", instanceHandler.GetEvents)
			instances.GET(":id/console", instanceHandler.GetConsole)

			instances.GET(":id/macros", instanceHandler.ListMacros)
			instances.POST(":id/macros/:name", instanceHandler.RunMacro)

			// Backup routes under specific instance
			backupHandler.RegisterRoutes(instances)
		}

		// Fleet metrics
		protected.GET("/metrics", metricsHandler.GetMetrics)

		// WebSocket routes
		protected.GET("/ws/console/:id", consoleHandler.HandleConsoleWebSocket)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}

// parseDuration is a helper to parse duration strings
func parseDuration(duration string) time.Duration {
	d, err := time.ParseDuration(duration)
	if err != nil {
		return 15 * time.Minute // Default fallback
	}
	return d
}
