package httpserver

import (
	"net/http"
	"strconv"

	"github.com/Skotchmaster/auth_platform/internal/audit"
	"github.com/Skotchmaster/auth_platform/internal/config"
	"github.com/Skotchmaster/auth_platform/internal/logging"
	"github.com/Skotchmaster/auth_platform/internal/service"
	"github.com/Skotchmaster/auth_platform/internal/subject"
	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"
)

// AdminHTTP exposes forced logout and session audit search. Reachable only
// through the ADMIN-scoped route group.
type AdminHTTP struct {
	Svc *service.AuthService
	ES  *elasticsearch.Client
	Cfg *config.Config
}

func (h *AdminHTTP) subjectFromPath(c echo.Context) (subject.Subject, error) {
	typ, err := subject.ParseType(c.Param("type"))
	if err != nil {
		return subject.Subject{}, echo.NewHTTPError(http.StatusBadRequest, "unknown subject type")
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return subject.Subject{}, echo.NewHTTPError(http.StatusBadRequest, "bad subject id")
	}
	return subject.Subject{Type: typ, ID: uint(id)}, nil
}

// LogoutAll revokes every active session of the subject named in the path,
// independent of any token that subject currently holds.
func (h *AdminHTTP) LogoutAll(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_logout_all")

	subj, err := h.subjectFromPath(c)
	if err != nil {
		return err
	}

	affected, err := h.Svc.LogoutAll(ctx, subj)
	if err != nil {
		l.Error("logout_all_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "logout all failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"subject":         subj.String(),
		"sessions_closed": affected,
	})
}

func (h *AdminHTTP) AuditSearch(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_audit_search")

	if h.ES == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit search not configured")
	}

	subj, err := h.subjectFromPath(c)
	if err != nil {
		return err
	}

	size := 50
	if raw := c.QueryParam("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			size = n
		}
	}

	events, err := audit.SearchBySubject(ctx, h.ES, h.Cfg.ESIndex, string(subj.Type), subj.ID, size)
	if err != nil {
		l.Error("audit_search_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "audit search failed")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"subject": subj.String(),
		"events":  events,
	})
}
