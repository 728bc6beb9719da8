package server

import (
	"github.com/OFFIS-RIT/prospect/internal/metrics"
	"github.com/OFFIS-RIT/prospect/internal/server/middleware"
	"github.com/OFFIS-RIT/prospect/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check routes
	e.GET("/health", routes.HealthHandler)
	e.GET("/ping", routes.PingHandler)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// OAuth routes
	e.GET("/oauth/authorize", routes.AuthorizeHandler)
	e.POST("/oauth/token", routes.TokenHandler)

	// MCP routes
	e.POST("/mcp", routes.MCPHandler, middleware.AuthMiddleware)
	e.POST("/mcp/:"+middleware.APIKeyParam, routes.MCPHandler, middleware.AuthMiddleware)

	apiRoutes := e.Group("/api/v01", middleware.AuthMiddleware)

	// Query routes
	apiRoutes.POST("/parse_query", routes.ParseQueryHandler)

	// Company routes
	apiRoutes.GET("/lookup", routes.LookupHandler)
	apiRoutes.POST("/lookup_many", routes.LookupManyHandler)
	apiRoutes.POST("/lookalike_from_term", routes.LookalikeFromTermHandler)
	apiRoutes.POST("/lookalike_from_ids", routes.LookalikeFromIDsHandler)

	// Title and embedding routes
	apiRoutes.POST("/titles", routes.TitlesHandler)
	apiRoutes.GET("/embed_many", routes.EmbedManyHandler)

	// Report routes
	apiRoutes.POST("/reports", routes.CreateReportHandler)
	apiRoutes.GET("/reports/:id", routes.GetReportHandler)
}
