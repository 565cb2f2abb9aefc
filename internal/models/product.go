package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ExpensiveThreshold is the price above which a product counts as expensive.
var ExpensiveThreshold = decimal.NewFromInt(100)

// MaxStock is the largest stock a product may hold.
const MaxStock = math.MaxInt32

// Price column precision: decimal(10,2).
const (
	PriceMaxDigits     = 10
	PriceDecimalPlaces = 2
)

// Product represents a product in the catalogue.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string          `json:"name" gorm:"uniqueIndex;type:varchar(255);not null"`
	Description string          `json:"description" gorm:"type:text"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	IsAvailable bool            `json:"is_available" gorm:"not null"`
	// Timestamps are managed by the service so updated_at strictly increases.
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
}

// IsInStock reports whether any units are left.
func (p *Product) IsInStock() bool {
	return p.Stock > 0
}

// IsExpensive reports whether the price is above ExpensiveThreshold.
func (p *Product) IsExpensive() bool {
	return p.Price.GreaterThan(ExpensiveThreshold)
}

// DecreaseStock removes quantity units if enough are left. It returns false and
// leaves the product untouched otherwise.
func (p *Product) DecreaseStock(quantity int) bool {
	if quantity < 0 || p.Stock < quantity {
		return false
	}
	p.Stock -= quantity
	return true
}

// IncreaseStock adds quantity units. It returns false and leaves the product
// untouched when the result would exceed MaxStock.
func (p *Product) IncreaseStock(quantity int) bool {
	if quantity < 0 || quantity > MaxStock-p.Stock {
		return false
	}
	p.Stock += quantity
	return true
}

// String returns the product name.
func (p Product) String() string {
	return p.Name
}
