package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/Skotchmaster/tienda/internal/db"
	"github.com/Skotchmaster/tienda/internal/jwtmiddleware"
	"github.com/Skotchmaster/tienda/internal/metrics"
	authmw "github.com/Skotchmaster/tienda/internal/middleware/auth"
	"github.com/Skotchmaster/tienda/internal/middleware/csrf"
	loggingmw "github.com/Skotchmaster/tienda/internal/middleware/logging"
	"github.com/Skotchmaster/tienda/internal/tokens"
)

type Deps struct {
	DB          *gorm.DB
	AuthHandler *AuthHTTP
	Catalog     *CatalogHTTP
	Signer      *tokens.Signer
	Metrics     *metrics.Metrics
	CSRF        csrf.Config
}

type Options struct {
	Logger             *slog.Logger
	Metrics            *metrics.Metrics
	RateLimitPerSecond float64
	RateLimitBurst     int
	CORSOrigins        []string
}

// Use installs the server-wide middleware chain.
func Use(e *echo.Echo, o Options) {
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(o.Logger))
	e.Use(middleware.Recover())
	e.Use(o.Metrics.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     o.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-CSRF-Token"},
		ExposeHeaders:    []string{"X-InLineCount", "X-CSRF-Token"},
		AllowCredentials: true,
	}))
	if o.RateLimitPerSecond > 0 {
		store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:  rate.Limit(o.RateLimitPerSecond),
			Burst: o.RateLimitBurst,
		})
		e.Use(middleware.RateLimiter(store))
	}
}

func Register(e *echo.Echo, d *Deps) {
	if e.Validator == nil {
		e.Validator = NewValidator()
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), d.DB); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/api/v1")

	bearer := jwtmiddleware.JWTMiddleware(d.Signer)

	guard := d.CSRF
	guard.IssueOnlyPaths = append(guard.IssueOnlyPaths,
		"/api/v1/users/register",
		"/api/v1/users/token",
		"/api/v1/users/addrole",
	)
	users := v1.Group("/users", csrf.Middleware(guard))
	users.POST("/register", d.AuthHandler.Register)
	users.POST("/token", d.AuthHandler.Login)
	users.POST("/refresh-token", d.AuthHandler.Refresh)
	users.POST("/addrole", d.AuthHandler.AddRole, bearer)
	users.POST("/logout", d.AuthHandler.Logout)

	admin := []echo.MiddlewareFunc{bearer, authmw.AdminOnly()}

	products := v1.Group("/products", admin...)
	products.GET("", d.Catalog.GetProducts)
	products.GET("/search", d.Catalog.SearchProducts)
	products.GET("/:id", d.Catalog.GetProduct)
	products.POST("", d.Catalog.CreateProduct)
	products.PUT("/:id", d.Catalog.UpdateProduct)
	products.PATCH("/:id", d.Catalog.PatchProduct)
	products.DELETE("/:id", d.Catalog.DeleteProduct)

	brands := v1.Group("/brands", admin...)
	brands.GET("", d.Catalog.ListBrands)
	brands.GET("/:id", d.Catalog.GetBrand)
	brands.POST("", d.Catalog.CreateBrand)
	brands.PUT("/:id", d.Catalog.RenameBrand)
	brands.DELETE("/:id", d.Catalog.DeleteBrand)

	categories := v1.Group("/categories", admin...)
	categories.GET("", d.Catalog.ListCategories)
	categories.GET("/:id", d.Catalog.GetCategory)
	categories.POST("", d.Catalog.CreateCategory)
	categories.PUT("/:id", d.Catalog.RenameCategory)
	categories.DELETE("/:id", d.Catalog.DeleteCategory)
}
