package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/service"
)

// PaymentHandler serves payment requests, the gateway callback and the
// admin reconciliation endpoint.
type PaymentHandler struct {
	Payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	if payments == nil {
		panic("nil service passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: payments}
}

type paymentRequest struct {
	ReservationID uint64 `json:"reservation_id" validate:"required"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	CallbackURL   string `json:"callback_url" validate:"omitempty,url"`
}

// Request handles POST /v1/payments.  On success the client redirects the
// payer to redirect_url.
func (h *PaymentHandler) Request(c echo.Context) error {
	actor, err := getActor(c)
	if err != nil {
		return unauthorized(c)
	}
	var body paymentRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	out, err := h.Payments.Request(c.Request().Context(), service.PaymentRequest{
		StudentID:     actor.ID,
		ReservationID: body.ReservationID,
		Amount:        body.Amount,
		CallbackURL:   body.CallbackURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// Verify handles GET /v1/payments/verify?Authority=&Status=, the URL the
// gateway sends the payer back to.  It is public; the authority itself
// identifies the payment.
func (h *PaymentHandler) Verify(c echo.Context) error {
	authority := c.QueryParam("Authority")
	if authority == "" {
		return badRequest(c, "Authority is required")
	}
	out, err := h.Payments.Verify(c.Request().Context(), authority, c.QueryParam("Status"))
	if err != nil && !errors.Is(err, service.ErrAlreadyProcessed) {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type inquireRequest struct {
	Authority     string `json:"authority" validate:"required"`
	CheckReversal bool   `json:"check_reversal"`
}

// Inquire handles POST /v1/admin/payments/inquire.
func (h *PaymentHandler) Inquire(c echo.Context) error {
	var body inquireRequest
	if ok, err := bind(c, &body); !ok {
		return err
	}
	out, err := h.Payments.Inquire(c.Request().Context(), body.Authority, body.CheckReversal)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
