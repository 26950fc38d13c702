package httpserver

import (
	"net/http"

	"github.com/Skotchmaster/auth_platform/internal/middleware"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	AuthHandler  *AuthHTTP
	AdminHandler *AdminHTTP
	Auth         *middleware.Auth
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.POST("/register", d.AuthHandler.Register)
	e.POST("/login", d.AuthHandler.Login)
	e.POST("/refresh", d.AuthHandler.Refresh)
	e.POST("/logout", d.AuthHandler.LogOut)

	private := e.Group("")
	private.Use(d.Auth.Require(subject.TypeUser, subject.TypeAdmin, subject.TypeStaff))
	private.GET("/me", d.AuthHandler.Me)

	admin := e.Group("/admin")
	admin.Use(d.Auth.Require(subject.TypeAdmin))
	admin.POST("/subjects/:type/:id/logout_all", d.AdminHandler.LogoutAll)
	admin.GET("/subjects/:type/:id/audit", d.AdminHandler.AuditSearch)
}
