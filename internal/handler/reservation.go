package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/service"
)

// ReservationHandler serves the student-facing reservation endpoints.
// JWT authentication and the STUDENT role are enforced by the router.
type ReservationHandler struct {
	Reservations *service.ReservationService
	Delivery     *service.DeliveryService
}

// NewReservationHandler panics on nil dependencies.
func NewReservationHandler(reservations *service.ReservationService, delivery *service.DeliveryService) *ReservationHandler {
	if reservations == nil || delivery == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Reservations: reservations, Delivery: delivery}
}

type createReservationRequest struct {
	MenuItemID uint64 `json:"menu_item_id" validate:"required"`
	TimeSlotID uint64 `json:"time_slot_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	HasVoucher bool   `json:"has_voucher"`
}

// Create handles POST /v1/reservations.  It answers 201 with the new
// reservation, which is pending_payment unless the voucher covered the
// whole price.
func (h *ReservationHandler) Create(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	var body createReservationRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	res, err := h.Reservations.PlaceOrder(c.Request().Context(), service.OrderRequest{
		StudentID:  actor.ID,
		MenuItemID: body.MenuItemID,
		TimeSlotID: body.TimeSlotID,
		Date:       body.Date,
		HasVoucher: body.HasVoucher,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	items, err := h.Reservations.ListMine(c.Request().Context(), actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	res, err := h.Reservations.Get(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel handles DELETE /v1/reservations/:id for unpaid reservations.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.Reservations.Cancel(c.Request().Context(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// QR handles GET /v1/reservations/:id/qr and returns the pickup QR code as
// a PNG.  ?size= sets the edge length in pixels.
func (h *ReservationHandler) QR(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	size, _ := strconv.Atoi(c.QueryParam("size"))
	png, err := h.Delivery.QRCode(c.Request().Context(), actor, id, size)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}
