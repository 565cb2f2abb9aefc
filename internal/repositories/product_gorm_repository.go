package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"katalog/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// List retrieves one page of products from the database.
func (r *GORMProductRepository) List(ctx context.Context, filter ListFilter) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.AvailableOnly {
		query = query.Where("is_available = ?", true)
	}
	if filter.InStockOnly {
		query = query.Where("stock > 0")
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\'`, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	order := "name ASC, id ASC"
	if filter.Order == OrderByNewest {
		order = "created_at DESC, id ASC"
	}

	var products []models.Product
	if err := query.Order(order).Offset(filter.Offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
		}
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return &product, nil
}

// GetByName retrieves a single product by its exact name.
func (r *GORMProductRepository) GetByName(ctx context.Context, name string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product named %q: %w", name, ErrProductNotFound)
		}
		return nil, fmt.Errorf("failed to get product by name %q: %w", name, err)
	}
	return &product, nil
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("product named %q: %w", product.Name, ErrDuplicateName)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// Update writes every mutable column of an existing product.
func (r *GORMProductRepository) Update(ctx context.Context, product *models.Product) error {
	// Select("*") so zero values such as stock 0 or is_available false are written.
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(product)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return fmt.Errorf("product named %q: %w", product.Name, ErrDuplicateName)
		}
		return fmt.Errorf("failed to update product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s not found for update: %w", product.ID, ErrProductNotFound)
	}
	return nil
}

// Delete deletes a product by its ID from the database.
func (r *GORMProductRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("product with ID %s not found for deletion: %w", id, ErrProductNotFound)
	}
	return nil
}

// AdjustStock changes the stock with a single conditional UPDATE so the
// bounds also hold between processes sharing the database.
func (r *GORMProductRepository) AdjustStock(ctx context.Context, id string, delta int, at time.Time) (*models.Product, error) {
	if delta > models.MaxStock {
		return nil, fmt.Errorf("product with ID %s cannot add %d: %w", id, delta, ErrStockLimit)
	}

	var product models.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND stock + ? >= 0 AND stock <= ?", id, delta, models.MaxStock-delta).
			Updates(map[string]interface{}{
				"stock":      gorm.Expr("stock + ?", delta),
				"updated_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to adjust stock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check product %s: %w", id, err)
			}
			if count == 0 {
				return fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
			}
			if delta > 0 {
				return fmt.Errorf("product with ID %s cannot add %d: %w", id, delta, ErrStockLimit)
			}
			return fmt.Errorf("product with ID %s: %w", id, ErrInsufficientStock)
		}
		return tx.First(&product, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// escapeLike makes LIKE wildcards in s match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key")
}
