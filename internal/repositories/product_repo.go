package repositories

import (
	"context"
	"time"

	"katalog/internal/models"
)

// Ordering names a default sort order for product listings.
type Ordering string

const (
	OrderByName          Ordering = "name"
	OrderByNewest        Ordering = "-created_at"
	defaultListLimit              = 100
)

// ListFilter narrows and pages a product listing.
type ListFilter struct {
	AvailableOnly bool // is_available = true
	InStockOnly   bool // stock > 0
	Search        string
	Order         Ordering
	Offset        int
	Limit         int
}

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	// List returns one page of matching products and the total match count.
	List(ctx context.Context, filter ListFilter) ([]models.Product, int64, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByName(ctx context.Context, name string) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
	// AdjustStock adds delta to the stock and sets updated_at in one step. A
	// result below zero is refused with ErrInsufficientStock.
	AdjustStock(ctx context.Context, id string, delta int, at time.Time) (*models.Product, error)
}
