package handler // HTTP handlers for the echo router

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/middleware"
	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/service"
)

// Validator adapts go-playground/validator to echo.Validator so handlers
// can call c.Validate on bound request bodies.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns the validator installed on the echo instance.
func NewValidator() *Validator { return &Validator{v: validator.New()} }

func (cv *Validator) Validate(i interface{}) error { return cv.v.Struct(i) }

// bind decodes the request body into dst and validates it.  Failures are
// written as 400 and reported by the boolean.
func bind(c echo.Context, dst interface{}) (bool, error) {
	if err := c.Bind(dst); err != nil {
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		msg := err.Error()
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = verrs[0].Field() + " failed " + verrs[0].Tag() + " validation"
		}
		return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
	}
	return true, nil
}

// getActor returns the caller authenticated by the JWT middleware.
func getActor(c echo.Context) (model.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return model.Actor{}, errors.New("no authenticated actor in context")
	}
	return a, nil
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}

var statusOf = map[error]int{
	service.ErrCapacityExceeded:     http.StatusConflict,
	service.ErrTrustScoreBlocked:    http.StatusForbidden,
	service.ErrDuplicateReservation: http.StatusConflict,
	service.ErrForbidden:            http.StatusForbidden,
	service.ErrGatewayUnavailable:   http.StatusServiceUnavailable,
	service.ErrGatewayRejected:      http.StatusPaymentRequired,
	service.ErrAlreadyProcessed:     http.StatusOK,
	service.ErrAmountMismatch:       http.StatusUnprocessableEntity,
	service.ErrInvalidTransition:    http.StatusConflict,
	service.ErrAlreadyRedeemed:      http.StatusConflict,
	service.ErrNotFound:             http.StatusNotFound,
	service.ErrInvalidInput:         http.StatusBadRequest,
	service.ErrMenuUnavailable:      http.StatusConflict,
}

// respondError writes a service error as {"error": kind, "message": text}.
// Unexpected errors are logged and hidden behind a 500.
func respondError(c echo.Context, err error) error {
	kind := service.KindOf(err)
	if kind == nil {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal error"})
	}
	return c.JSON(statusOf[kind], echo.Map{"error": kind.Error(), "message": service.Message(err)})
}
