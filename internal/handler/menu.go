package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/meal-reservation/internal/model"
	"github.com/iliyamo/meal-reservation/internal/service"
)

// MenuHandler lists the menu of a day with remaining capacity.
type MenuHandler struct {
	Allocator *service.Allocator
	Now       func() time.Time
}

func NewMenuHandler(a *service.Allocator) *MenuHandler {
	if a == nil {
		panic("nil allocator passed to NewMenuHandler")
	}
	return &MenuHandler{Allocator: a, Now: time.Now}
}

// List handles GET /v1/menu?date=&meal_type=.  date defaults to today.
func (h *MenuHandler) List(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = h.Now().Format(model.DateLayout)
	}
	var meal model.MealType
	if v := c.QueryParam("meal_type"); v != "" {
		m, ok := model.ParseMealType(v)
		if !ok {
			return badRequest(c, "unknown meal_type")
		}
		meal = m
	}
	items, err := h.Allocator.Availability(c.Request().Context(), date, meal)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "items": items})
}
