package router

import (
	"github.com/gin-gonic/gin"

	"github.com/imyashkale/fleetctl/internal/handlers"
	"github.com/imyashkale/fleetctl/internal/middleware"
)

// Handlers groups every handler the router mounts
type Handlers struct {
	Health  *handlers.HealthHandler
	Servers *handlers.ServerHandler
	Console *handlers.ConsoleHandler
	Events  *handlers.EventsHandler
	Audit   *handlers.AuditHandler
}

// Options configures the router
type Options struct {
	JWTSecret   []byte
	CORSOrigins []string
}

// Setup configures and returns the application router
func Setup(h Handlers, opts Options) *gin.Engine {
	// Create a new Gin router
	router := gin.Default()

	// Apply CORS middleware globally
	router.Use(middleware.CORS(opts.CORSOrigins...))

	// API v1 routes
	v1 := router.Group("/api/v1")

	// Health check stays reachable without a token
	v1.GET("/health", h.Health.Check)

	api := v1.Group("")
	api.Use(middleware.Authentication(opts.JWTSecret))

	member := middleware.RequireRole(middleware.RoleMember)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	servers := api.Group("/servers")
	{
		servers.GET("", member, h.Servers.List)
		servers.POST("", admin, h.Servers.Create)
		servers.GET("/:id", member, h.Servers.Get)
		servers.PATCH("/:id", admin, h.Servers.Update)
		servers.DELETE("/:id", admin, h.Servers.Delete)
		servers.GET("/:id/status", member, h.Servers.Status)
		servers.PUT("/:id/startup-file", admin, h.Servers.SetStartupFile)
		servers.POST("/:id/start", admin, h.Servers.Start)
		servers.POST("/:id/stop", admin, h.Servers.Stop)
		servers.POST("/:id/restart", admin, h.Servers.Restart)
		servers.POST("/:id/command", admin, h.Servers.SendCommand)
		servers.GET("/:id/files", member, h.Servers.ListFiles)
		servers.GET("/:id/console", member, h.Servers.Console)
		servers.GET("/:id/console/ws", member, h.Console.Stream)
		servers.GET("/:id/audit", member, h.Audit.List)
	}

	api.GET("/events/ws", member, h.Events.Stream)

	return router
}
