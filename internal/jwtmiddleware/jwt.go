package jwtmiddleware

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/tokens"
)

const ContextKey = "user"

// JWTMiddleware authenticates "Authorization: Bearer <token>" with the signer,
// so issuer, audience and lifetime are enforced the same way they are issued.
// The claims are stored as *tokens.AccessClaims under ContextKey.
func JWTMiddleware(signer *tokens.Signer) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  ContextKey,
		TokenLookup: "header:Authorization:Bearer ",
		ParseTokenFunc: func(c echo.Context, auth string) (any, error) {
			return signer.Parse(auth)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			logging.FromContext(c.Request().Context()).Warn("access_token_rejected", "status", 401, "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing access token")
		},
	})
}

func Claims(c echo.Context) (*tokens.AccessClaims, bool) {
	claims, ok := c.Get(ContextKey).(*tokens.AccessClaims)
	return claims, ok && claims != nil
}
