package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tienda/internal/jwtmiddleware"
	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/service"
	"github.com/Skotchmaster/tienda/internal/transport"
)

type AuthHTTP struct {
	Svc          *service.SessionService
	CookieSecure bool
}

// authStatus maps session errors to HTTP codes. Unknown users and tokens are
// reported as 401 like bad passwords; only the message tells them apart.
func authStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "validation", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := h.Svc.Register(ctx, service.RegisterInput{
		FirstName:     req.FirstName,
		FatherSurname: req.FatherSurname,
		MotherSurname: req.MotherSurname,
		Email:         req.Email,
		Username:      req.Username,
		Password:      req.Password,
	})
	if err != nil {
		code := authStatus(err)
		if code >= 500 {
			l.Error("register_failed", "status", code, "error", err)
		}
		return echo.NewHTTPError(code, msg)
	}

	return c.JSON(http.StatusCreated, transport.MessageResponse{Message: msg})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	data, err := h.Svc.Login(ctx, service.LoginInput{Username: req.Username, Password: req.Password})
	if err != nil {
		return c.JSON(authStatus(err), data)
	}

	c.SetCookie(CreateCookie(refreshCookie, data.RefreshToken, data.RefreshTokenExpiration, h.CookieSecure))
	return c.JSON(http.StatusOK, data)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	cookie, err := c.Cookie(refreshCookie)
	if err != nil || cookie.Value == "" {
		logging.FromContext(ctx).Warn("refresh_error", "status", 401, "reason", "no refresh cookie")
		return c.JSON(http.StatusUnauthorized, service.UserData{Message: "refresh token is required"})
	}

	data, err := h.Svc.Refresh(ctx, cookie.Value)
	if err != nil {
		code := authStatus(err)
		if code == http.StatusUnauthorized {
			c.SetCookie(DeleteCookie(refreshCookie, h.CookieSecure))
		}
		return c.JSON(code, data)
	}

	c.SetCookie(CreateCookie(refreshCookie, data.RefreshToken, data.RefreshTokenExpiration, h.CookieSecure))
	return c.JSON(http.StatusOK, data)
}

func (h *AuthHTTP) AddRole(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.add_role")

	var req transport.AddRoleRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_role_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	claims, ok := jwtmiddleware.Claims(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
	}
	if !strings.EqualFold(claims.Subject, req.Username) {
		l.Warn("add_role_denied", "status", 403, "reason", "token subject differs", "user_id", claims.UID)
		return echo.NewHTTPError(http.StatusForbidden, "you can only change your own roles")
	}

	msg, err := h.Svc.AddRole(ctx, service.AddRoleInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		code := authStatus(err)
		if errors.Is(err, service.ErrNotFound) {
			code = http.StatusNotFound
		}
		return echo.NewHTTPError(code, msg)
	}

	return c.JSON(http.StatusOK, transport.MessageResponse{Message: msg})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	if cookie, err := c.Cookie(refreshCookie); err == nil {
		if err := h.Svc.Logout(ctx, cookie.Value); err != nil {
			c.SetCookie(DeleteCookie(refreshCookie, h.CookieSecure))
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke refresh token", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot revoke refresh token")
		}
	}

	c.SetCookie(DeleteCookie(refreshCookie, h.CookieSecure))
	return c.JSON(http.StatusOK, transport.MessageResponse{Message: "logged out"})
}
