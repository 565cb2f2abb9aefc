package handlers

import (
	"time"

	"katalog/internal/models"
)

// ProductResponse is the wire form of a product.
type ProductResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Price              string    `json:"price"`
	Stock              int       `json:"stock"`
	IsAvailable        bool      `json:"is_available"`
	IsExpensiveProduct bool      `json:"is_expensive_product"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toProductResponse(p *models.Product) ProductResponse {
	return ProductResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		Price:              p.Price.StringFixed(2),
		Stock:              p.Stock,
		IsAvailable:        p.IsAvailable,
		IsExpensiveProduct: p.IsExpensive(),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func toProductResponses(products []models.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for i := range products {
		out = append(out, toProductResponse(&products[i]))
	}
	return out
}
