package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/meal-reservation/internal/config"
	"github.com/iliyamo/meal-reservation/internal/handler"
	"github.com/iliyamo/meal-reservation/internal/middleware"
)

// Handlers groups every handler mounted by Register.
type Handlers struct {
	Health       echo.HandlerFunc
	Menu         *handler.MenuHandler
	Reservations *handler.ReservationHandler
	Payments     *handler.PaymentHandler
	Kitchen      *handler.KitchenHandler
	Admin        *handler.AdminHandler
}

// Options carries the settings the route middleware needs.  Redis may be
// nil, in which case rate limiting and caching are pass-through.
type Options struct {
	JWTSecret string
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// Register installs the validator and mounts all routes on e.
func Register(e *echo.Echo, h Handlers, opt Options) {
	e.Validator = handler.NewValidator()

	limit := middleware.NewTokenBucket(opt.RateLimit, opt.Redis)
	payLimit := middleware.NewTokenBucket(config.PaymentRateLimit(opt.RateLimit), opt.Redis)
	auth := middleware.JWTAuth(opt.JWTSecret)

	registerPublic(e, h, opt, limit, payLimit)
	registerStudent(e, h, auth, limit, payLimit)
	registerKitchen(e, h, auth, limit)
	registerAdmin(e, h, auth, limit)
}

// registerPublic mounts endpoints that need no token.  The payment callback
// is reached by the payer's browser coming back from the gateway.
func registerPublic(e *echo.Echo, h Handlers, opt Options, limit, payLimit echo.MiddlewareFunc) {
	e.GET("/healthz", h.Health)
	e.GET("/v1/menu", h.Menu.List, limit, middleware.NewRedisCache(opt.Cache, opt.Redis))
	e.GET("/v1/payments/verify", h.Payments.Verify, payLimit)
}
