package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tienda/internal/jwtmiddleware"
	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/models"
)

// RequireRole must run after jwtmiddleware.JWTMiddleware.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := jwtmiddleware.Claims(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			if !claims.HasRole(role) {
				logging.FromContext(c.Request().Context()).Warn("access_denied",
					"status", 403,
					"reason", "missing role",
					"role", role,
					"user_id", claims.UID,
				)
				return echo.NewHTTPError(http.StatusForbidden, "you don't have enough rights")
			}

			c.Set("user_id", claims.UID)
			c.Set("roles", claims.Roles)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.With(req.Context(), "user_id", claims.UID)))
			return next(c)
		}
	}
}

func AdminOnly() echo.MiddlewareFunc {
	return RequireRole(models.RoleAdmin)
}
