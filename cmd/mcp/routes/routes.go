// Package routes wires the MCP control plane's HTTP surface, grouped by
// resource the way cmd/orchestrator/routes/run.go groups routes.
package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/iceos/orchestrator/cmd/mcp/handlers"
	mcpmiddleware "github.com/iceos/orchestrator/cmd/mcp/middleware"
)

// Handlers bundles every handler routes.Register needs, assembled in
// main.go once all dependencies are constructed.
type Handlers struct {
	Blueprints *handlers.BlueprintHandler
	Runs       *handlers.RunHandler
	Events     *handlers.EventsHandler
	Drafts     *handlers.DraftHandler
	WS         *handlers.WebSocketHandler
	Bearer     string
}

// Register mounts every MCP route group on e.
func Register(e *echo.Echo, h Handlers) {
	auth := mcpmiddleware.RequireBearerToken(h.Bearer)

	blueprints := e.Group("/api/v1/mcp/blueprints")
	blueprints.Use(auth)
	{
		blueprints.POST("", h.Blueprints.Register)
		blueprints.POST("/:tag", h.Blueprints.RegisterWithTag)
		blueprints.GET("/:id", h.Blueprints.Get)
		blueprints.GET("/by-tag/:tag", h.Blueprints.GetByTag)
		blueprints.GET("/:id/runs", h.Runs.ListByBlueprint)
	}

	runs := e.Group("/api/v1/mcp/runs")
	runs.Use(auth)
	{
		runs.POST("", h.Runs.Submit)
		runs.GET("/:id", h.Runs.GetStatus)
		runs.GET("/:id/details", h.Runs.GetDetails)
		runs.GET("/:id/events", h.Events.Stream)
	}

	drafts := e.Group("/api/v1/drafts")
	drafts.Use(auth)
	{
		drafts.POST("/:session_id", h.Drafts.CreateOrGet)
		drafts.GET("/:session_id", h.Drafts.Get)
		drafts.POST("/:session_id/lock", h.Drafts.Lock)
		drafts.POST("/:session_id/position", h.Drafts.SetPosition)
		drafts.POST("/:session_id/instantiate", h.Drafts.Instantiate)
	}

	// The WebSocket handshake authenticates via Sec-WebSocket-Protocol
	// (spec §6.2), not the Authorization header, so it sits outside the
	// bearer-token group.
	e.GET("/api/v1/mcp/ws/:session_id", h.WS.Serve)
}
