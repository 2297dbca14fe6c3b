package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/repository"
	"github.com/iliyamo/meal-reservation/internal/service"
)

// KitchenHandler serves kitchen staff and the pickup counter.
type KitchenHandler struct {
	Reservations *service.ReservationService
	Delivery     *service.DeliveryService
}

func NewKitchenHandler(reservations *service.ReservationService, delivery *service.DeliveryService) *KitchenHandler {
	if reservations == nil || delivery == nil {
		panic("nil service passed to NewKitchenHandler")
	}
	return &KitchenHandler{Reservations: reservations, Delivery: delivery}
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus handles PATCH /v1/kitchen/reservations/:id/status.
func (h *KitchenHandler) UpdateStatus(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var body statusRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	to, ok := model.ParseReservationStatus(body.Status)
	if !ok {
		return badRequest(c, "unknown status")
	}
	res, err := h.Reservations.UpdateStatus(c.Request().Context(), actor, id, to)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// List handles GET /v1/kitchen/reservations?date=&meal_type=&status=.
// date defaults to today.
func (h *KitchenHandler) List(c echo.Context) error {
	f := repository.KitchenFilter{Date: c.QueryParam("date")}
	if f.Date == "" {
		f.Date = time.Now().Format(model.DateLayout)
	}
	if v := c.QueryParam("meal_type"); v != "" {
		meal, ok := model.ParseMealType(v)
		if !ok {
			return badRequest(c, "unknown meal_type")
		}
		f.Meal = meal
	}
	if v := c.QueryParam("status"); v != "" {
		st, ok := model.ParseReservationStatus(v)
		if !ok {
			return badRequest(c, "unknown status")
		}
		f.Status = st
	}
	items, err := h.Reservations.KitchenQueue(c.Request().Context(), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

type scanRequest struct {
	Code string `json:"code" validate:"required"`
}

// Scan handles POST /v1/delivery/scan.  code is a typed delivery code or
// the content of the pickup QR code.
func (h *KitchenHandler) Scan(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	var body scanRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	res, err := h.Delivery.Redeem(c.Request().Context(), actor, body.Code)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
