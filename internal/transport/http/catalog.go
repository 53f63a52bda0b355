package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/service"
	"github.com/Skotchmaster/tienda/internal/transport"
	"github.com/Skotchmaster/tienda/internal/util"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func catalogStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail logs under event and converts err into an echo error.
func fail(c echo.Context, event string, err error) error {
	code := catalogStatus(err)
	l := logging.FromContext(c.Request().Context())
	if code >= 500 {
		l.Error(event, "status", code, "error", err)
		return echo.NewHTTPError(code, "internal error")
	}
	l.Warn(event, "status", code, "error", err)
	return echo.NewHTTPError(code, err.Error())
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id must be a positive integer")
	}
	return uint(id), nil
}

func bindValid(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := c.Validate(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func writePage(c echo.Context, page *service.ProductPage) error {
	c.Response().Header().Set("X-InLineCount", strconv.FormatInt(page.Meta.Total, 10))
	return c.JSON(http.StatusOK, page)
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("pageIndex"), 1)
	size := util.ParseIntDefault(c.QueryParam("pageSize"), util.DefaultPageSize)

	res, err := h.Svc.ListProducts(c.Request().Context(), page, size, c.QueryParam("search"))
	if err != nil {
		return fail(c, "get_products_failed", err)
	}
	return writePage(c, res)
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("pageIndex"), 1)
	size := util.ParseIntDefault(c.QueryParam("pageSize"), util.DefaultPageSize)

	res, err := h.Svc.SearchProducts(c.Request().Context(), c.QueryParam("q"), page, size)
	if err != nil {
		return fail(c, "search_products_failed", err)
	}
	return writePage(c, res)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.Svc.GetProduct(c.Request().Context(), id)
	if err != nil {
		return fail(c, "get_product_failed", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	var req transport.ProductRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.Svc.CreateProduct(c.Request().Context(), req)
	if err != nil {
		return fail(c, "product_create_failed", err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *CatalogHTTP) UpdateProduct(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.ProductRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.Svc.UpdateProduct(c.Request().Context(), id, req)
	if err != nil {
		return fail(c, "product_update_failed", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) PatchProduct(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.PatchProductRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.Svc.PatchProduct(c.Request().Context(), id, req)
	if err != nil {
		return fail(c, "product_patch_failed", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteProduct(c.Request().Context(), id); err != nil {
		return fail(c, "product_delete_failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) ListBrands(c echo.Context) error {
	list, err := h.Svc.ListBrands(c.Request().Context())
	if err != nil {
		return fail(c, "list_brands_failed", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CatalogHTTP) GetBrand(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	b, err := h.Svc.GetBrand(c.Request().Context(), id)
	if err != nil {
		return fail(c, "get_brand_failed", err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *CatalogHTTP) CreateBrand(c echo.Context) error {
	var req transport.NameRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b, err := h.Svc.CreateBrand(c.Request().Context(), req.Name)
	if err != nil {
		return fail(c, "brand_create_failed", err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *CatalogHTTP) RenameBrand(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.NameRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	b, err := h.Svc.RenameBrand(c.Request().Context(), id, req.Name)
	if err != nil {
		return fail(c, "brand_rename_failed", err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *CatalogHTTP) DeleteBrand(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteBrand(c.Request().Context(), id); err != nil {
		return fail(c, "brand_delete_failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) ListCategories(c echo.Context) error {
	list, err := h.Svc.ListCategories(c.Request().Context())
	if err != nil {
		return fail(c, "list_categories_failed", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *CatalogHTTP) GetCategory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cat, err := h.Svc.GetCategory(c.Request().Context(), id)
	if err != nil {
		return fail(c, "get_category_failed", err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	var req transport.NameRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cat, err := h.Svc.CreateCategory(c.Request().Context(), req.Name)
	if err != nil {
		return fail(c, "category_create_failed", err)
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *CatalogHTTP) RenameCategory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req transport.NameRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	cat, err := h.Svc.RenameCategory(c.Request().Context(), id, req.Name)
	if err != nil {
		return fail(c, "category_rename_failed", err)
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *CatalogHTTP) DeleteCategory(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteCategory(c.Request().Context(), id); err != nil {
		return fail(c, "category_delete_failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}
