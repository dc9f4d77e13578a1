package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

// Context keys populated by Auth.
const (
	KeyUsername = "username"
	KeyRole     = "role"
	KeyClientID = "client_id"
)

// accessTokenParam lets EventSource clients, which cannot set headers,
// authenticate the stream endpoint.
const accessTokenParam = "access_token"

// Claims is the token payload issued at login.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates the HS256 bearer token and injects the viewer's username,
// role and client_id into the echo context.
func Auth(jwtSecret string) echo.MiddlewareFunc {
	key := []byte(jwtSecret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c)
			if err != nil {
				return err
			}

			claims := &Claims{}
			tkn, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tkn.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if !domain.ValidRole(claims.Role) {
				return echo.NewHTTPError(http.StatusUnauthorized, "token carries an unknown role")
			}

			c.Set(KeyUsername, claims.Username)
			c.Set(KeyRole, claims.Role)
			c.Set(KeyClientID, claims.ClientID)

			return next(c)
		}
	}
}

func bearerToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		if q := c.QueryParam(accessTokenParam); q != "" {
			return q, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
	}
	return parts[1], nil
}
