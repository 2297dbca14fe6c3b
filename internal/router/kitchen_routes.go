package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/middleware"
	"github.com/iliyamo/meal-reservation/internal/model"
)

// registerKitchen mounts the fulfillment endpoints.  Which role may apply
// which status change is decided per transition by the service.
func registerKitchen(e *echo.Echo, h Handlers, auth, limit echo.MiddlewareFunc) {
	k := e.Group("/v1/kitchen", auth, middleware.RequireRole(model.RoleChef, model.RoleReceiver, model.RoleAdmin), limit)
	k.GET("/reservations", h.Kitchen.List)
	k.PATCH("/reservations/:id/status", h.Kitchen.UpdateStatus)

	d := e.Group("/v1/delivery", auth, middleware.RequireRole(model.RoleReceiver, model.RoleAdmin), limit)
	d.POST("/scan", h.Kitchen.Scan)
}
