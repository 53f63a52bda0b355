package repo

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/tienda/internal/models"
	"github.com/Skotchmaster/tienda/internal/transport"
)

func (r *GormRepo) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := r.DB.WithContext(ctx).
		Preload("Brand").
		Preload("Category").
		First(&product, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &product, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// nameContains matches search literally; LIKE wildcards in it are escaped.
func nameContains(search string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if s := strings.TrimSpace(search); s != "" {
			pattern := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
			return db.Where(`LOWER(name) LIKE ? ESCAPE '\'`, pattern)
		}
		return db
	}
}

// GetProducts pages through products ordered by id; search matches the name.
func (r *GormRepo) GetProducts(ctx context.Context, search string, offset, limit int) (int64, []models.Product, error) {
	var total int64
	err := r.DB.WithContext(ctx).
		Model(&models.Product{}).
		Scopes(nameContains(search)).
		Count(&total).Error
	if err != nil {
		return 0, nil, translate(err)
	}

	items := make([]models.Product, 0, limit)
	err = r.DB.WithContext(ctx).
		Scopes(nameContains(search)).
		Preload("Brand").
		Preload("Category").
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return 0, nil, translate(err)
	}
	return total, items, nil
}

// GetProductsByIDs keeps the order of ids and skips ids that no longer exist.
func (r *GormRepo) GetProductsByIDs(ctx context.Context, ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var found []models.Product
	err := r.DB.WithContext(ctx).
		Preload("Brand").
		Preload("Category").
		Where("id IN ?", ids).
		Find(&found).Error
	if err != nil {
		return nil, translate(err)
	}

	byID := make(map[uint]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) (*models.Product, error) {
	if err := r.ensureBrandAndCategory(ctx, prod.BrandID, prod.CategoryID); err != nil {
		return nil, err
	}
	if err := r.DB.WithContext(ctx).Omit("Brand", "Category").Create(prod).Error; err != nil {
		return nil, fmt.Errorf("create product: %w", translate(err))
	}
	return r.GetProduct(ctx, prod.ID)
}

func (r *GormRepo) UpdateProduct(ctx context.Context, id uint, req transport.ProductRequest) (*models.Product, error) {
	patch := transport.PatchProductRequest{
		Name:       &req.Name,
		Price:      &req.Price,
		BrandID:    &req.BrandID,
		CategoryID: &req.CategoryID,
	}
	return r.PatchProduct(ctx, id, patch)
}

func (r *GormRepo) PatchProduct(ctx context.Context, id uint, req transport.PatchProductRequest) (*models.Product, error) {
	var prod models.Product
	if err := r.DB.WithContext(ctx).First(&prod, id).Error; err != nil {
		return nil, translate(err)
	}

	if req.Name != nil {
		prod.Name = *req.Name
	}
	if req.Price != nil {
		prod.Price = *req.Price
	}
	if req.BrandID != nil {
		prod.BrandID = *req.BrandID
	}
	if req.CategoryID != nil {
		prod.CategoryID = *req.CategoryID
	}
	if err := r.ensureBrandAndCategory(ctx, prod.BrandID, prod.CategoryID); err != nil {
		return nil, err
	}

	if err := r.DB.WithContext(ctx).Omit("Brand", "Category").Save(&prod).Error; err != nil {
		return nil, fmt.Errorf("save product: %w", translate(err))
	}
	return r.GetProduct(ctx, prod.ID)
}

func (r *GormRepo) DeleteProduct(ctx context.Context, id uint) error {
	res := r.DB.WithContext(ctx).Delete(&models.Product{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) ensureBrandAndCategory(ctx context.Context, brandID, categoryID uint) error {
	if _, err := r.GetBrand(ctx, brandID); err != nil {
		return fmt.Errorf("brand %d: %w", brandID, err)
	}
	if _, err := r.GetCategory(ctx, categoryID); err != nil {
		return fmt.Errorf("category %d: %w", categoryID, err)
	}
	return nil
}

func (r *GormRepo) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var list []models.Brand
	if err := r.DB.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *GormRepo) GetBrand(ctx context.Context, id uint) (*models.Brand, error) {
	var b models.Brand
	if err := r.DB.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, translate(err)
	}
	return &b, nil
}

func (r *GormRepo) CreateBrand(ctx context.Context, b *models.Brand) error {
	if err := r.DB.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("create brand: %w", translate(err))
	}
	return nil
}

func (r *GormRepo) RenameBrand(ctx context.Context, id uint, name string) (*models.Brand, error) {
	if err := rename(r.DB.WithContext(ctx), &models.Brand{}, id, name); err != nil {
		return nil, err
	}
	return r.GetBrand(ctx, id)
}

func (r *GormRepo) DeleteBrand(ctx context.Context, id uint) error {
	return deleteReferenced(r.DB.WithContext(ctx), &models.Brand{}, "brand_id", id)
}

func (r *GormRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	var list []models.Category
	if err := r.DB.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *GormRepo) GetCategory(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := r.DB.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *GormRepo) CreateCategory(ctx context.Context, c *models.Category) error {
	if err := r.DB.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create category: %w", translate(err))
	}
	return nil
}

func (r *GormRepo) RenameCategory(ctx context.Context, id uint, name string) (*models.Category, error) {
	if err := rename(r.DB.WithContext(ctx), &models.Category{}, id, name); err != nil {
		return nil, err
	}
	return r.GetCategory(ctx, id)
}

func (r *GormRepo) DeleteCategory(ctx context.Context, id uint) error {
	return deleteReferenced(r.DB.WithContext(ctx), &models.Category{}, "category_id", id)
}

func rename(db *gorm.DB, model any, id uint, name string) error {
	res := db.Model(model).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// deleteReferenced fails with ErrInUse while products still point at the row.
func deleteReferenced(db *gorm.DB, model any, column string, id uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.Product{}).Where(column+" = ?", id).Count(&refs).Error; err != nil {
			return translate(err)
		}
		if refs > 0 {
			return ErrInUse
		}

		res := tx.Delete(model, id)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
