package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/atelier-portal/portal-sync/internal/api/middleware"
	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// paramClientID names the path segment every client-scoped route carries.
const paramClientID = "client_id"

// viewer is the identity middleware.Auth left on the request.
type viewer struct {
	Username string
	Role     string
	ClientID string
}

// staff reports whether the viewer may see every client.
func (v viewer) staff() bool { return v.Role != domain.RoleClient }

// currentViewer reads the auth claims. A missing role means Auth never ran;
// a client token without a client_id cannot be scoped and is rejected.
func currentViewer(c echo.Context) (viewer, error) {
	var v viewer
	v.Role, _ = c.Get(middleware.KeyRole).(string)
	if v.Role == "" {
		return viewer{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	v.Username, _ = c.Get(middleware.KeyUsername).(string)
	v.ClientID, _ = c.Get(middleware.KeyClientID).(string)
	if !v.staff() && v.ClientID == "" {
		return viewer{}, echo.NewHTTPError(http.StatusUnauthorized, "token missing client identity")
	}
	return v, nil
}

// ctxClaims returns the role and own client_id of the caller.
func ctxClaims(c echo.Context) (role, clientID string, err error) {
	v, err := currentViewer(c)
	if err != nil {
		return "", "", err
	}
	return v.Role, v.ClientID, nil
}

// clientScope returns the :client_id path parameter after checking the
// caller may see it. Client accounts only ever see their own client.
func clientScope(c echo.Context) (target, role string, err error) {
	v, err := currentViewer(c)
	if err != nil {
		return "", "", err
	}
	target = c.Param(paramClientID)
	if target == "" {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "client_id is required")
	}
	if !v.staff() && target != v.ClientID {
		return "", "", domain.ErrForbidden
	}
	return target, v.Role, nil
}

func ctxUsername(c echo.Context) string {
	u, _ := c.Get(middleware.KeyUsername).(string)
	return u
}
