package middleware

import (
	"net/http"
	"strings"

	"github.com/Skotchmaster/auth_platform/internal/service"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"github.com/labstack/echo/v4"
)

const (
	AccessCookieName = "accessToken"
	AccountKey       = "account"
)

type Auth struct {
	Svc *service.AuthService
}

func NewAuth(svc *service.AuthService) *Auth {
	return &Auth{Svc: svc}
}

// Require validates the access token from the cookie or the Authorization
// header and scopes the route to the given subject types.
func (m *Auth) Require(types ...subject.Type) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}

			account, err := m.Svc.ValidateAccess(c.Request().Context(), raw, types...)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(AccountKey, account)
			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
