package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/middleware"
	"github.com/iliyamo/meal-reservation/internal/model"
)

func registerAdmin(e *echo.Echo, h Handlers, auth, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/admin", auth, middleware.RequireRole(model.RoleAdmin), limit)
	g.GET("/students/:id/trust-score", h.Admin.TrustHistory)
	g.POST("/students/:id/trust-score/recover", h.Admin.RecoverTrust)
	g.PATCH("/menu-items/:id/availability", h.Admin.SetAvailability)
	g.GET("/voucher-price", h.Admin.VoucherPrice)
	g.PUT("/voucher-price", h.Admin.SetVoucherPrice)
	g.POST("/payments/inquire", h.Payments.Inquire)
}
