package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tienda/internal/logging"
)

// Config drives a double-submit guard for endpoints authenticated by the
// refresh-token cookie. IssueOnlyPaths are route patterns that hand out a
// token without checking one, so the login response already carries it.
type Config struct {
	CookieName string
	HeaderName string

	CookiePath string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
	MaxAge     time.Duration

	// TrustedOrigins are accepted besides the request's own origin.
	// "*" disables the origin check.
	TrustedOrigins []string

	IssueOnlyPaths []string
}

func DefaultConfig() Config {
	return Config{
		CookieName: "XSRF-TOKEN",
		HeaderName: "X-CSRF-Token",
		CookiePath: "/",
		Secure:     true,
		SameSite:   http.SameSiteLaxMode,
		MaxAge:     24 * time.Hour,
	}
}

type guard struct {
	cfg       Config
	issueOnly map[string]struct{}
	origins   map[string]struct{}
	anyOrigin bool
}

func newGuard(cfg Config) *guard {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = def.CookiePath
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = def.SameSite
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}

	g := &guard{
		cfg:       cfg,
		issueOnly: make(map[string]struct{}, len(cfg.IssueOnlyPaths)),
		origins:   make(map[string]struct{}, len(cfg.TrustedOrigins)),
	}
	for _, p := range cfg.IssueOnlyPaths {
		g.issueOnly[p] = struct{}{}
	}
	for _, o := range cfg.TrustedOrigins {
		if o == "*" {
			g.anyOrigin = true
			continue
		}
		g.origins[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return g
}

func Middleware(cfg Config) echo.MiddlewareFunc {
	g := newGuard(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := g.issue(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "failed to create CSRF token")
			}

			if !g.needsCheck(c) {
				return next(c)
			}
			if reason := g.verify(c.Request(), token); reason != "" {
				logging.FromContext(c.Request().Context()).Warn("csrf_rejected", "status", 403, "reason", reason)
				return echo.NewHTTPError(http.StatusForbidden, "invalid CSRF token")
			}

			c.Set("csrf_token", token)
			return next(c)
		}
	}
}

// issue reuses the cookie token or mints one, and refreshes the cookie.
func (g *guard) issue(c echo.Context) (string, error) {
	token := ""
	if ck, err := c.Request().Cookie(g.cfg.CookieName); err == nil {
		token = ck.Value
	}
	if token == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		token = base64.RawURLEncoding.EncodeToString(b)
	}

	c.SetCookie(&http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     g.cfg.CookiePath,
		Domain:   g.cfg.Domain,
		Secure:   g.cfg.Secure,
		HttpOnly: false,
		MaxAge:   int(g.cfg.MaxAge.Seconds()),
		SameSite: g.cfg.SameSite,
	})
	c.Response().Header().Set(g.cfg.HeaderName, token)
	return token, nil
}

func (g *guard) needsCheck(c echo.Context) bool {
	switch c.Request().Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	_, skip := g.issueOnly[c.Path()]
	return !skip
}

// verify returns why the request is rejected, or "" when it passes.
func (g *guard) verify(r *http.Request, token string) string {
	if !g.originAllowed(r) {
		return "origin mismatch"
	}
	provided := r.Header.Get(g.cfg.HeaderName)
	if provided == "" || subtle.ConstantTimeCompare([]byte(token), []byte(provided)) != 1 {
		return "token mismatch"
	}
	return ""
}

func (g *guard) originAllowed(r *http.Request) bool {
	if g.anyOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = r.Header.Get("Referer")
	}
	u, err := url.Parse(origin)
	if origin == "" || err != nil || u.Host == "" {
		return false
	}

	if strings.EqualFold(u.Scheme, schemeOf(r)) && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := g.origins[strings.ToLower(u.Scheme+"://"+u.Host)]
	return ok
}

func schemeOf(r *http.Request) string {
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		return p
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
