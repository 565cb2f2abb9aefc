package repositories

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"katalog/internal/models"

	"github.com/google/uuid"
)

// MemoryProductRepository is an in-memory implementation of ProductRepository.
type MemoryProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
}

// NewMemoryProductRepository creates a new instance of MemoryProductRepository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[string]models.Product),
	}
}

// List returns the products matching filter in the requested order.
func (r *MemoryProductRepository) List(_ context.Context, filter ListFilter) ([]models.Product, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if filter.AvailableOnly && !p.IsAvailable {
			continue
		}
		if filter.InStockOnly && p.Stock <= 0 {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.Order == OrderByNewest {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID < b.ID
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	total := int64(len(matched))
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	start := filter.Offset
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) || end < start {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// GetByID returns a product by its ID.
func (r *MemoryProductRepository) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
	}
	return &product, nil
}

// GetByName returns a product by its exact name.
func (r *MemoryProductRepository) GetByName(_ context.Context, name string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.Name == name {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("product named %q: %w", name, ErrProductNotFound)
}

// Create adds a new product.
func (r *MemoryProductRepository) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if _, exists := r.products[product.ID]; exists {
		return fmt.Errorf("product with ID %s already exists", product.ID)
	}
	if r.nameTakenLocked(product.Name, product.ID) {
		return fmt.Errorf("product named %q: %w", product.Name, ErrDuplicateName)
	}
	r.products[product.ID] = *product
	return nil
}

// Update replaces an existing product.
func (r *MemoryProductRepository) Update(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.products[product.ID]
	if !ok {
		return fmt.Errorf("product with ID %s not found for update: %w", product.ID, ErrProductNotFound)
	}
	if r.nameTakenLocked(product.Name, product.ID) {
		return fmt.Errorf("product named %q: %w", product.Name, ErrDuplicateName)
	}
	product.CreatedAt = current.CreatedAt
	r.products[product.ID] = *product
	return nil
}

// Delete removes a product by its ID.
func (r *MemoryProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return fmt.Errorf("product with ID %s not found for deletion: %w", id, ErrProductNotFound)
	}
	delete(r.products, id)
	return nil
}

// AdjustStock applies delta to the stock of a product.
func (r *MemoryProductRepository) AdjustStock(_ context.Context, id string, delta int, at time.Time) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product with ID %s: %w", id, ErrProductNotFound)
	}
	if delta < 0 {
		if !product.DecreaseStock(-delta) {
			return nil, fmt.Errorf("product with ID %s has %d left: %w", id, product.Stock, ErrInsufficientStock)
		}
	} else if !product.IncreaseStock(delta) {
		return nil, fmt.Errorf("product with ID %s has %d, cannot add %d: %w", id, product.Stock, delta, ErrStockLimit)
	}
	product.UpdatedAt = at
	r.products[id] = product
	return &product, nil
}

func (r *MemoryProductRepository) nameTakenLocked(name, exceptID string) bool {
	for id, p := range r.products {
		if id != exceptID && p.Name == name {
			return true
		}
	}
	return false
}
