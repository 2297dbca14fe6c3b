package middleware

import "github.com/labstack/echo/v4"

// currentUserID returns the caller's id for rate limit keys, or "anon"
// on public routes.
func currentUserID(c echo.Context) string {
	if v, ok := c.Get(ctxUserID).(string); ok && v != "" {
		return v
	}
	return "anon"
}
