package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Skotchmaster/tienda/internal/logging"
	"github.com/Skotchmaster/tienda/internal/metrics"
	"github.com/Skotchmaster/tienda/internal/models"
	"github.com/Skotchmaster/tienda/internal/mykafka"
	"github.com/Skotchmaster/tienda/internal/repo"
	"github.com/Skotchmaster/tienda/internal/transport"
	"github.com/Skotchmaster/tienda/internal/util"
)

type CatalogStore interface {
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	GetProducts(ctx context.Context, search string, offset, limit int) (int64, []models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uint) ([]models.Product, error)
	CreateProduct(ctx context.Context, prod *models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uint, req transport.ProductRequest) (*models.Product, error)
	PatchProduct(ctx context.Context, id uint, req transport.PatchProductRequest) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uint) error

	ListBrands(ctx context.Context) ([]models.Brand, error)
	GetBrand(ctx context.Context, id uint) (*models.Brand, error)
	CreateBrand(ctx context.Context, b *models.Brand) error
	RenameBrand(ctx context.Context, id uint, name string) (*models.Brand, error)
	DeleteBrand(ctx context.Context, id uint) error

	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id uint) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error
	RenameCategory(ctx context.Context, id uint, name string) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uint) error
}

// ProductIndex is the full-text side of the catalog. search.ES implements it.
type ProductIndex interface {
	Search(ctx context.Context, query string, from, size int) (int64, []uint, error)
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uint) error
}

type ProductPage struct {
	Data []models.Product `json:"data"`
	Meta util.PageMeta    `json:"meta"`
}

type CatalogService struct {
	Repo    CatalogStore
	Index   ProductIndex
	Events  EventPublisher
	Metrics *metrics.Metrics
}

func catalogErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repo.ErrInUse), errors.Is(err, repo.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return storageErr("catalog", err)
}

func (s *CatalogService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	p, err := s.Repo.GetProduct(ctx, id)
	return p, catalogErr(err)
}

func (s *CatalogService) ListProducts(ctx context.Context, page, size int, search string) (*ProductPage, error) {
	offset, limit, page := util.Calculate(page, size)
	search = strings.TrimSpace(search)

	total, items, err := s.Repo.GetProducts(ctx, search, offset, limit)
	if err != nil {
		return nil, catalogErr(err)
	}
	return &ProductPage{Data: items, Meta: util.NewPageMeta(page, limit, total, search)}, nil
}

// SearchProducts asks the index first and falls back to a LIKE query when
// there is no index or it fails.
func (s *CatalogService) SearchProducts(ctx context.Context, query string, page, size int) (*ProductPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", ErrValidation)
	}
	offset, limit, page := util.Calculate(page, size)

	if s.Index != nil {
		total, ids, err := s.Index.Search(ctx, query, offset, limit)
		if err == nil {
			items, err := s.Repo.GetProductsByIDs(ctx, ids)
			if err != nil {
				return nil, catalogErr(err)
			}
			return &ProductPage{Data: items, Meta: util.NewPageMeta(page, limit, total, query)}, nil
		}
		logging.FromContext(ctx).Warn("search_index_failed", "reason", "falling back to sql", "error", err)
	}

	total, items, err := s.Repo.GetProducts(ctx, query, offset, limit)
	if err != nil {
		return nil, catalogErr(err)
	}
	return &ProductPage{Data: items, Meta: util.NewPageMeta(page, limit, total, query)}, nil
}

func requireName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	return nil
}

func validPrice(price float64) error {
	if price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	return nil
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.ProductRequest) (*models.Product, error) {
	if err := errors.Join(requireName(req.Name), validPrice(req.Price)); err != nil {
		return nil, err
	}

	p, err := s.Repo.CreateProduct(ctx, &models.Product{
		Name:       strings.TrimSpace(req.Name),
		Price:      req.Price,
		BrandID:    req.BrandID,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		return nil, catalogErr(err)
	}

	s.productChanged(ctx, p, "created")
	return p, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id uint, req transport.ProductRequest) (*models.Product, error) {
	if err := errors.Join(requireName(req.Name), validPrice(req.Price)); err != nil {
		return nil, err
	}
	req.Name = strings.TrimSpace(req.Name)

	p, err := s.Repo.UpdateProduct(ctx, id, req)
	if err != nil {
		return nil, catalogErr(err)
	}

	s.productChanged(ctx, p, "updated")
	return p, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, id uint, req transport.PatchProductRequest) (*models.Product, error) {
	if req.Name != nil {
		if err := requireName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Price != nil {
		if err := validPrice(*req.Price); err != nil {
			return nil, err
		}
	}

	p, err := s.Repo.PatchProduct(ctx, id, req)
	if err != nil {
		return nil, catalogErr(err)
	}

	s.productChanged(ctx, p, "updated")
	return p, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		return catalogErr(err)
	}

	s.Metrics.CatalogChange("product", "deleted")
	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("search_unindex_failed", "product_id", id, "error", err)
		}
	}
	publish(ctx, s.Events, s.Metrics, mykafka.TopicProductEvents, strconv.FormatUint(uint64(id), 10), Event{
		Type: "product_deleted",
		Data: map[string]any{"product_id": id},
	})
	return nil
}

func (s *CatalogService) productChanged(ctx context.Context, p *models.Product, action string) {
	s.Metrics.CatalogChange("product", action)
	if s.Index != nil {
		if err := s.Index.IndexProduct(ctx, p); err != nil {
			logging.FromContext(ctx).Warn("search_index_failed", "product_id", p.ID, "error", err)
		}
	}
	publish(ctx, s.Events, s.Metrics, mykafka.TopicProductEvents, strconv.FormatUint(uint64(p.ID), 10), Event{
		Type: "product_" + action,
		Data: map[string]any{"product_id": p.ID, "name": p.Name, "price": p.Price},
	})
}

func (s *CatalogService) ListBrands(ctx context.Context) ([]models.Brand, error) {
	list, err := s.Repo.ListBrands(ctx)
	return list, catalogErr(err)
}

func (s *CatalogService) GetBrand(ctx context.Context, id uint) (*models.Brand, error) {
	b, err := s.Repo.GetBrand(ctx, id)
	return b, catalogErr(err)
}

func (s *CatalogService) CreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	b := &models.Brand{Name: strings.TrimSpace(name)}
	if err := s.Repo.CreateBrand(ctx, b); err != nil {
		return nil, catalogErr(err)
	}
	s.Metrics.CatalogChange("brand", "created")
	return b, nil
}

func (s *CatalogService) RenameBrand(ctx context.Context, id uint, name string) (*models.Brand, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	b, err := s.Repo.RenameBrand(ctx, id, strings.TrimSpace(name))
	if err != nil {
		return nil, catalogErr(err)
	}
	s.Metrics.CatalogChange("brand", "updated")
	return b, nil
}

func (s *CatalogService) DeleteBrand(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteBrand(ctx, id); err != nil {
		return catalogErr(err)
	}
	s.Metrics.CatalogChange("brand", "deleted")
	return nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	list, err := s.Repo.ListCategories(ctx)
	return list, catalogErr(err)
}

func (s *CatalogService) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	c, err := s.Repo.GetCategory(ctx, id)
	return c, catalogErr(err)
}

func (s *CatalogService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	c := &models.Category{Name: strings.TrimSpace(name)}
	if err := s.Repo.CreateCategory(ctx, c); err != nil {
		return nil, catalogErr(err)
	}
	s.Metrics.CatalogChange("category", "created")
	return c, nil
}

func (s *CatalogService) RenameCategory(ctx context.Context, id uint, name string) (*models.Category, error) {
	if err := requireName(name); err != nil {
		return nil, err
	}
	c, err := s.Repo.RenameCategory(ctx, id, strings.TrimSpace(name))
	if err != nil {
		return nil, catalogErr(err)
	}
	s.Metrics.CatalogChange("category", "updated")
	return c, nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteCategory(ctx, id); err != nil {
		return catalogErr(err)
	}
	s.Metrics.CatalogChange("category", "deleted")
	return nil
}
