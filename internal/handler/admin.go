package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/meal-reservation/internal/middleware"
	"github.com/iliyamo/meal-reservation/internal/repository"
	"github.com/iliyamo/meal-reservation/internal/service"
)

// AdminHandler serves trust score management and menu administration.
// Menu changes purge the cached menu responses under CachePrefix.
type AdminHandler struct {
	Trust       *service.TrustService
	Catalog     *repository.CatalogRepo
	Redis       *redis.Client // may be nil
	CachePrefix string
}

func NewAdminHandler(trust *service.TrustService, catalog *repository.CatalogRepo, rdb *redis.Client, cachePrefix string) *AdminHandler {
	if trust == nil || catalog == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Trust: trust, Catalog: catalog, Redis: rdb, CachePrefix: cachePrefix}
}

type recoverRequest struct {
	Points int    `json:"points" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=255"`
}

// RecoverTrust handles POST /v1/admin/students/:id/trust-score/recover.
func (h *AdminHandler) RecoverTrust(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid student id")
	}
	var body recoverRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	st, err := h.Trust.Recover(c.Request().Context(), actor, id, body.Points, body.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// TrustHistory handles GET /v1/admin/students/:id/trust-score.
func (h *AdminHandler) TrustHistory(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid student id")
	}
	st, events, err := h.Trust.History(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"student": st, "events": events})
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available" validate:"required"`
}

// SetAvailability handles PATCH /v1/admin/menu-items/:id/availability.
func (h *AdminHandler) SetAvailability(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid menu item id")
	}
	var body availabilityRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	ctx := c.Request().Context()
	if err := h.Catalog.SetAvailability(ctx, id, *body.IsAvailable); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": "menu item not found"})
		}
		return respondError(c, err)
	}
	h.purge(ctx, c)
	return c.JSON(http.StatusOK, echo.Map{"id": id, "is_available": *body.IsAvailable})
}

// VoucherPrice handles GET /v1/admin/voucher-price.
func (h *AdminHandler) VoucherPrice(c echo.Context) error {
	price, err := h.Catalog.VoucherPrice(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"price": price})
}

type voucherRequest struct {
	Price *int64 `json:"price" validate:"required,gte=0"`
}

// SetVoucherPrice handles PUT /v1/admin/voucher-price.  Reservations already
// placed keep their price.
func (h *AdminHandler) SetVoucherPrice(c echo.Context) error {
	var body voucherRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	ctx := c.Request().Context()
	if err := h.Catalog.SetVoucherPrice(ctx, *body.Price); err != nil {
		return respondError(c, err)
	}
	h.purge(ctx, c)
	return c.JSON(http.StatusOK, echo.Map{"price": *body.Price})
}

// purge drops cached menu pages.  A failure only delays the change until
// the cache TTL expires.
func (h *AdminHandler) purge(ctx context.Context, c echo.Context) {
	if err := middleware.PurgeCache(ctx, h.Redis, h.CachePrefix); err != nil {
		c.Logger().Warnf("menu cache purge failed: %v", err)
	}
}
