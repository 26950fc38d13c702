package httpserver

import (
	"errors"
	"net/http"

	"github.com/Skotchmaster/auth_platform/internal/limiter"
	"github.com/Skotchmaster/auth_platform/internal/logging"
	"github.com/Skotchmaster/auth_platform/internal/middleware"
	"github.com/Skotchmaster/auth_platform/internal/models"
	"github.com/Skotchmaster/auth_platform/internal/repo"
	"github.com/Skotchmaster/auth_platform/internal/service"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"github.com/labstack/echo/v4"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

type credentialsRequest struct {
	SubjectType string `json:"subject_type"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	typ, err := subject.ParseType(req.SubjectType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown subject type")
	}

	account, err := h.Svc.Register(ctx, typ, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "username and password required")
		case errors.Is(err, repo.ErrAccountExists):
			return echo.NewHTTPError(http.StatusConflict, "account already exists")
		}
		l.Error("register_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "register failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":       account.ID,
		"username": account.Username,
	})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	typ, err := subject.ParseType(req.SubjectType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown subject type")
	}

	pair, err := h.Svc.Login(ctx, typ, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, limiter.ErrMaxSignInExceeded) {
			l.Warn("login_failed", "status", 409, "reason", "session limit")
			return echo.NewHTTPError(http.StatusConflict, "active session limit reached, sign out on another device")
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			l.Warn("login_failed", "status", 401)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		l.Error("login_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	c.SetCookie(CreateCookie(accessCookieName, pair.AccessToken, "/", pair.AccessExp))
	c.SetCookie(CreateCookie(refreshCookieName, pair.RefreshToken, "/", pair.RefreshExp))
	l.Info("login_successful")

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	refreshCookie, err := c.Cookie(refreshCookieName)
	if err != nil || refreshCookie.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "refresh token missing")
	}

	accessToken, accessExp, err := h.Svc.ValidateRefresh(ctx, refreshCookie.Value)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			c.SetCookie(DeleteCookie(accessCookieName, "/"))
			c.SetCookie(DeleteCookie(refreshCookieName, "/"))
			l.Warn("refresh_failed", "status", 401)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "refresh failed")
	}

	c.SetCookie(CreateCookie(accessCookieName, accessToken, "/", accessExp))
	l.Info("refresh_successful")

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": accessToken,
	})
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	refreshCookie, err := c.Cookie(refreshCookieName)
	if err == nil && refreshCookie.Value != "" {
		if err := h.Svc.LogoutByToken(ctx, refreshCookie.Value); err != nil {
			l.Error("logout_failed", "status", 500, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
		}
	}

	c.SetCookie(DeleteCookie(accessCookieName, "/"))
	c.SetCookie(DeleteCookie(refreshCookieName, "/"))

	l.Info("logout_successful")
	return c.JSON(http.StatusOK, echo.Map{
		"message": "logged out",
	})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	account, ok := c.Get(middleware.AccountKey).(*models.Account)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	return c.JSON(http.StatusOK, account)
}
