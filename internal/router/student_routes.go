package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/middleware"
	"github.com/iliyamo/meal-reservation/internal/model"
)

// registerStudent mounts the student endpoints under /v1.  Ownership of a
// reservation is checked by the services.
func registerStudent(e *echo.Echo, h Handlers, auth, limit, payLimit echo.MiddlewareFunc) {
	g := e.Group("/v1", auth, middleware.RequireRole(model.RoleStudent), limit)
	g.POST("/reservations", h.Reservations.Create)
	g.GET("/my-reservations", h.Reservations.ListMine)
	g.GET("/reservations/:id", h.Reservations.Get)
	g.DELETE("/reservations/:id", h.Reservations.Cancel)
	g.GET("/reservations/:id/qr", h.Reservations.QR)

	g.POST("/payments", h.Payments.Request, payLimit)
}
