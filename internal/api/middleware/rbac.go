package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RBAC admits only the listed roles. Mount it after Auth, which sets KeyRole.
func RBAC(roles ...string) echo.MiddlewareFunc {
	roles = slices.Clone(roles)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(KeyRole).(string)
			if role == "" || !slices.Contains(roles, role) {
				return echo.NewHTTPError(http.StatusForbidden, "role not allowed")
			}
			return next(c)
		}
	}
}
